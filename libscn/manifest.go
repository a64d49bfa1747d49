package libscn

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"drumkit/drum"
	"drumkit/liberr"
	"drumkit/liblog"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/exp/slices"
)

// Manifest lists the assets of a scene together with the parts that asset
// formats cannot express. Paths are relative to the manifest file.
type Manifest struct {
	Assets      []string           `json:"assets"`
	Lights      []LightDesc        `json:"lights"`
	Instances   []InstanceDesc     `json:"instances"`
	Environment EnvironmentSources `json:"environment"`
}

type LightDesc struct {
	Position  [3]float32 `json:"position"`
	Color     [3]float32 `json:"color"`
	Intensity float32    `json:"intensity"`
}

// InstanceDesc places an additional instance of every model named Model.
// Matrix, when set, takes precedence over the TRS fields.
type InstanceDesc struct {
	Model       string       `json:"model"`
	Translation [3]float32   `json:"translation"`
	Rotation    [4]float32   `json:"rotation"`
	Scale       [3]float32   `json:"scale"`
	Matrix      *[16]float32 `json:"matrix"`
}

func (desc InstanceDesc) Transform() mgl32.Mat4 {
	if desc.Matrix != nil {
		return mgl32.Mat4(*desc.Matrix)
	}

	s := mgl32.Vec3(desc.Scale)
	if s == (mgl32.Vec3{}) {
		s = mgl32.Vec3{1, 1, 1}
	}
	r := mgl32.QuatIdent()
	if desc.Rotation != ([4]float32{}) {
		r = mgl32.Quat{W: desc.Rotation[3], V: mgl32.Vec3{desc.Rotation[0], desc.Rotation[1], desc.Rotation[2]}}.Normalize()
	}
	t := desc.Translation
	return mgl32.Translate3D(t[0], t[1], t[2]).Mul4(r.Mat4()).Mul4(mgl32.Scale3D(s[0], s[1], s[2]))
}

func (desc LightDesc) Light() drum.Light {
	l := drum.Light{
		Position:  desc.Position,
		Color:     desc.Color,
		Intensity: desc.Intensity,
	}
	if l.Color == (mgl32.Vec3{}) {
		l.Color = mgl32.Vec3{1, 1, 1}
	}
	if l.Intensity == 0 {
		l.Intensity = 1
	}
	return l
}

func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, liberr.Wrap(liberr.KindIo, path, err)
	}

	manifest := &Manifest{}
	if err := json.Unmarshal(data, manifest); err != nil {
		return nil, liberr.Importf(path, "could not unmarshal manifest: %w", err)
	}
	return manifest, nil
}

// ImportManifest imports every asset a manifest matches and applies its
// lights, instances and environment.
func ImportManifest(path string) (*Scene, error) {
	manifest, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}
	root := filepath.Dir(path)

	assets, err := ResolveAssets(root, manifest.Assets)
	if err != nil {
		return nil, liberr.Importf(path, "%w", err)
	}

	scene := NewScene()
	for _, asset := range assets {
		if strings.EqualFold(filepath.Ext(asset), ".json") {
			return nil, liberr.Importf(path, "manifest %q cannot include another manifest", asset)
		}
		sub, err := Import(asset)
		if err != nil {
			return nil, err
		}
		scene.Merge(sub)
	}

	for _, desc := range manifest.Lights {
		scene.Lights = append(scene.Lights, desc.Light())
	}

	for i, desc := range manifest.Instances {
		found := false
		for j := range scene.Models {
			if scene.Models[j].Name == desc.Model {
				scene.Models[j].Instances = append(scene.Models[j].Instances, drum.Instance{Transform: desc.Transform()})
				found = true
			}
		}
		if !found {
			return nil, liberr.Importf(path, "instance %d references model %q which does not exist", i, desc.Model)
		}
	}

	env := manifest.Environment
	for _, p := range []*string{&env.Equirect, &env.Irradiance, &env.Prefiltered, &env.BrdfLut} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(root, filepath.FromSlash(*p))
		}
	}
	scene.Environment = env

	liblog.Logger().Debug("imported manifest", "path", path, "assets", len(assets), "models", len(scene.Models))
	return scene, nil
}

// ResolveAssets expands glob patterns relative to root into a sorted list of
// unique files. Patterns without glob characters must name existing files.
func ResolveAssets(root string, patterns []string) ([]string, error) {
	var result []string
	for _, pattern := range patterns {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(root, filepath.FromSlash(pattern))
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid asset pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			if !strings.ContainsAny(pattern, "*?[") {
				return nil, fmt.Errorf("asset %q does not exist", pattern)
			}
			liblog.Logger().Warn("asset pattern matched nothing", "pattern", pattern)
		}
		result = append(result, matches...)
	}

	slices.Sort(result)
	return slices.Compact(result), nil
}
