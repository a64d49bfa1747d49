// Package libpack turns authored scenes into a Drum: it imports the assets,
// processes every referenced image, optionally bakes image based lighting and
// serializes the result. Nothing is written unless every step succeeds.
package libpack

import (
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"drumkit/drum"
	"drumkit/ibl"
	"drumkit/liberr"
	"drumkit/libio"
	"drumkit/liblog"
	"drumkit/libscn"
	"drumkit/libtex"

	"golang.org/x/sync/errgroup"
)

type Options struct {
	// scene files or glob patterns
	Assets []string
	// overrides the environment named by a scene manifest, per source
	Environment libscn.EnvironmentSources

	Compress bool
	Srgb     bool
	// level count, or libtex.MipmapsAuto
	Mipmaps int
	// lz4 level of the container sections, negative to disable
	ContainerCompression int

	Impl    ibl.Impl
	Device  ibl.DeviceType
	Bake    ibl.Settings
	Workers int
}

func DefaultOptions() Options {
	return Options{
		Mipmaps:              libtex.MipmapsAuto,
		ContainerCompression: 0,
		Impl:                 ibl.ImplOpenCl,
		Device:               ibl.DeviceTypeGPU,
		Bake:                 ibl.DefaultSettings(),
		Workers:              runtime.NumCPU(),
	}
}

var supportedAssets = []string{".gltf", ".glb", ".obj", ".json"}

// Pack builds a Drum from opts without writing it.
func Pack(opts Options) (*drum.Drum, error) {
	start := time.Now()
	log := liblog.Logger()

	scene, err := importAssets(opts.Assets)
	if err != nil {
		return nil, err
	}

	sources := scene.Environment
	if opts.Environment.Equirect != "" {
		sources.Equirect = opts.Environment.Equirect
	}
	if opts.Environment.Irradiance != "" {
		sources.Irradiance = opts.Environment.Irradiance
	}
	if opts.Environment.Prefiltered != "" {
		sources.Prefiltered = opts.Environment.Prefiltered
	}
	if opts.Environment.BrdfLut != "" {
		sources.BrdfLut = opts.Environment.BrdfLut
	}

	// the environment is resolved first since a bad source must fail before
	// any texture work is spent
	env, err := loadEnvironment(sources, opts)
	if err != nil {
		return nil, err
	}

	builder := drum.NewBuilder()
	handles, err := processImages(builder, scene, opts)
	if err != nil {
		return nil, err
	}

	for _, m := range scene.Models {
		mat := m.Material
		for slot, img := range m.Images {
			mat.Textures[slot] = drum.NoTexture
			if img != libscn.NoImage {
				mat.Textures[slot] = handles[textureKey(img, drum.MaterialSlot(slot), opts.Srgb)]
			}
		}
		builder.AddModel(drum.Model{
			Name:      m.Name,
			Mesh:      m.Mesh,
			Material:  mat,
			Instances: m.Instances,
		})
	}

	lights := scene.Lights
	if len(lights) == 0 {
		lights = []drum.Light{drum.DefaultLight()}
	}
	for _, l := range lights {
		builder.AddLight(l)
	}

	if env.any() {
		builder.SetEnvironment(env.irradiance, env.prefiltered, env.brdfLut)
	}

	d, err := builder.Build()
	if err != nil {
		return nil, err
	}

	log.Info("packed drum", "models", len(d.Models), "textures", len(d.Textures), "lights", len(d.Lights), "environment", d.Environment != nil, "duration", time.Since(start))
	return d, nil
}

// PackFile packs and writes the container to output.
func PackFile(output string, opts Options) (*drum.Drum, error) {
	d, err := Pack(opts)
	if err != nil {
		return nil, err
	}
	if err := drum.WriteFile(output, d, drum.OptCompress(opts.ContainerCompression)); err != nil {
		return nil, err
	}
	liblog.Logger().Info("wrote drum", "path", output, "id", d.ID)
	return d, nil
}

func importAssets(patterns []string) (*libscn.Scene, error) {
	assets, err := libscn.ResolveAssets("", patterns)
	if err != nil {
		return nil, liberr.Wrap(liberr.KindIo, "", err)
	}

	scene := libscn.NewScene()
	for _, asset := range assets {
		ext := strings.ToLower(filepath.Ext(asset))
		supported := false
		for _, s := range supportedAssets {
			supported = supported || s == ext
		}
		if !supported {
			liblog.Logger().Warn("skipping unsupported asset", "path", asset)
			continue
		}

		liblog.Logger().Info("adding asset", "path", asset)
		sub, err := libscn.Import(asset)
		if err != nil {
			return nil, err
		}
		scene.Merge(sub)
	}
	return scene, nil
}

type textureKeyT struct {
	image int
	usage libtex.Usage
	cs    drum.ColorSpace
}

func slotUsage(slot drum.MaterialSlot) libtex.Usage {
	switch slot {
	case drum.SlotNormal:
		return libtex.UsageNormal
	case drum.SlotMetallicRoughness:
		return libtex.UsageData
	case drum.SlotOcclusion:
		return libtex.UsageMask
	}
	return libtex.UsageColor
}

// textureKey identifies the processed texture for an image in a slot. An
// image used with different usages becomes several textures.
func textureKey(image int, slot drum.MaterialSlot, srgb bool) textureKeyT {
	cs := drum.ColorSpaceLinear
	if srgb && (slot == drum.SlotDiffuse || slot == drum.SlotEmission) {
		cs = drum.ColorSpaceSrgb
	}
	return textureKeyT{image: image, usage: slotUsage(slot), cs: cs}
}

// processImages decodes the referenced images, processes them and adds them
// to builder in first use order.
func processImages(builder *drum.Builder, scene *libscn.Scene, opts Options) (map[textureKeyT]drum.TextureHandle, error) {
	var keys []textureKeyT
	used := map[int]bool{}
	seen := map[textureKeyT]bool{}
	for _, m := range scene.Models {
		for slot, img := range m.Images {
			if img == libscn.NoImage {
				continue
			}
			key := textureKey(img, drum.MaterialSlot(slot), opts.Srgb)
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
			used[img] = true
		}
	}

	decoded, err := decodeImages(scene.Images, used, opts.Workers)
	if err != nil {
		return nil, err
	}

	jobs := make([]libtex.Job, len(keys))
	for i, key := range keys {
		jobs[i] = libtex.Job{
			Base: decoded[key.image],
			Options: libtex.Options{
				Mipmaps:    opts.Mipmaps,
				Compress:   opts.Compress,
				ColorSpace: key.cs,
				Usage:      key.usage,
			},
		}
	}

	textures, err := libtex.ProcessAll(jobs, opts.Workers)
	if err != nil {
		return nil, err
	}

	handles := make(map[textureKeyT]drum.TextureHandle, len(keys))
	for i, key := range keys {
		handles[key] = builder.AddTexture(*textures[i])
	}
	return handles, nil
}

func decodeImages(images []libscn.Image, used map[int]bool, workers int) ([]*drum.Texture, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	result := make([]*drum.Texture, len(images))
	var done atomic.Int32
	var g errgroup.Group
	g.SetLimit(workers)
	for i, img := range images {
		if !used[i] {
			continue
		}
		i, img := i, img
		g.Go(func() error {
			var tex *drum.Texture
			var err error
			if img.Data != nil {
				tex, err = libtex.Decode(img.Data, img.Name)
			} else {
				tex, err = libtex.DecodeFile(img.Path)
			}
			if err != nil {
				return err
			}
			result[i] = tex
			liblog.Logger().Debug("decoded image", "image", tex.Name, "width", tex.Width, "height", tex.Height, "done", done.Add(1), "total", len(used))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

type environment struct {
	irradiance  *drum.Texture
	prefiltered *drum.Texture
	brdfLut     *drum.Texture
}

func (env *environment) any() bool {
	return env.irradiance != nil || env.prefiltered != nil || env.brdfLut != nil
}

// lazyBaker creates its pipeline on first use.
type lazyBaker struct {
	opts     Options
	pipeline *ibl.Pipeline
	baker    *ibl.Baker
}

func (lb *lazyBaker) get() (*ibl.Baker, error) {
	if lb.baker == nil {
		pipeline, err := ibl.NewPipeline(lb.opts.Impl, lb.opts.Device, lb.opts.Bake)
		if err != nil {
			return nil, err
		}
		lb.pipeline = pipeline
		lb.baker = ibl.NewBaker(pipeline)
	}
	return lb.baker, nil
}

func (lb *lazyBaker) release() {
	if lb.pipeline != nil {
		lb.pipeline.Release()
	}
}

// loadEnvironment bakes the equirectangular source, if any, and lets pre-baked
// sources replace individual results. A single level prefiltered source is
// taken as roughness 0 and prefiltered into the full chain.
func loadEnvironment(sources libscn.EnvironmentSources, opts Options) (*environment, error) {
	env := &environment{}
	lb := &lazyBaker{opts: opts}
	defer lb.release()

	if sources.Equirect != "" {
		src, err := ibl.LoadEquirect(sources.Equirect)
		if err != nil {
			return nil, err
		}

		baker, err := lb.get()
		if err != nil {
			return nil, err
		}
		result, err := baker.Bake(src)
		if err != nil {
			return nil, err
		}
		env.irradiance, env.prefiltered, env.brdfLut = result.Textures()
	}

	var err error
	if sources.Irradiance != "" {
		if env.irradiance, err = loadCubemap(sources.Irradiance, "irradiance"); err != nil {
			return nil, err
		}
	}
	if sources.Prefiltered != "" {
		if env.prefiltered, err = loadCubemap(sources.Prefiltered, "prefiltered"); err != nil {
			return nil, err
		}
		if env.prefiltered.Mips == 1 && opts.Bake.PrefilterLevels() > 1 {
			if env.prefiltered, err = prefilterCubemap(lb, env.prefiltered, sources.Prefiltered); err != nil {
				return nil, err
			}
		}
	}
	if sources.BrdfLut != "" {
		if env.brdfLut, err = loadBrdfLut(sources.BrdfLut); err != nil {
			return nil, err
		}
	}
	return env, nil
}

func prefilterCubemap(lb *lazyBaker, tex *drum.Texture, path string) (*drum.Texture, error) {
	radiance, err := ibl.FromTexture(tex)
	if err != nil {
		return nil, err
	}
	baker, err := lb.get()
	if err != nil {
		return nil, err
	}
	liblog.Logger().Info("prefiltering single level cubemap", "path", filepath.ToSlash(path), "levels", lb.opts.Bake.PrefilterLevels())
	env, err := baker.Prefilter(radiance)
	if err != nil {
		return nil, err
	}
	return env.ToTexture(tex.Name), nil
}

// loadCubemap reads an .iblenv cache or an image with six stacked faces.
func loadCubemap(path, name string) (*drum.Texture, error) {
	if strings.EqualFold(filepath.Ext(path), ".iblenv") {
		env, err := ibl.ReadIblEnvFile(path)
		if err != nil {
			return nil, err
		}
		return env.ToTexture(name), nil
	}

	tex, err := libtex.DecodeFile(path)
	if err != nil {
		return nil, err
	}
	tex.Name = name
	return libtex.IntoCubemap(tex)
}

// loadBrdfLut reads a .f32 lookup table or a 2D image.
func loadBrdfLut(path string) (*drum.Texture, error) {
	if !strings.EqualFold(filepath.Ext(path), ".f32") {
		tex, err := libtex.DecodeFile(path)
		if err != nil {
			return nil, err
		}
		tex.Name = "brdf-lut"
		return tex, nil
	}

	img, err := libio.ReadLutFile(path)
	if err != nil {
		return nil, err
	}
	return ibl.LutTexture(img, "brdf-lut"), nil
}
