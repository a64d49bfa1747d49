package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"drumkit/ibl"
	"drumkit/liberr"
	"drumkit/libtex"
)

// mipmapsFlag is a mip level count or "auto".
type mipmapsFlag int

func (m *mipmapsFlag) String() string {
	if *m == libtex.MipmapsAuto {
		return "auto"
	}
	return strconv.Itoa(int(*m))
}

func (m *mipmapsFlag) Set(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "auto") {
		*m = libtex.MipmapsAuto
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return fmt.Errorf("%q is not a mip level count", s)
	}
	*m = mipmapsFlag(n)
	return nil
}

type bakeArgs struct {
	impl     ibl.Impl
	device   string
	settings ibl.Settings
}

func defaultBakeArgs() bakeArgs {
	s := ibl.DefaultSettings()
	s.Workers = runtime.NumCPU()
	return bakeArgs{
		impl:     ibl.ImplOpenCl,
		device:   ibl.DeviceTypeGPU.String(),
		settings: s,
	}
}

func registerBakeFlags(flags *flag.FlagSet, args *bakeArgs) {
	flags.Var(&args.impl, "impl", "the baking implementation; opencl or software")
	flags.StringVar(&args.device, "device", args.device, "the preferred opencl device; gpu, cpu or accelerator")
	flags.IntVar(&args.settings.Samples, "samples", args.settings.Samples, "GGX samples per prefiltered texel")
	flags.IntVar(&args.settings.CubemapSize, "cubemap-size", args.settings.CubemapSize, "face size of the radiance cubemap")
	flags.IntVar(&args.settings.IrradianceSize, "irradiance-size", args.settings.IrradianceSize, "face size of the irradiance cubemap")
	flags.IntVar(&args.settings.PrefilterSize, "prefilter-size", args.settings.PrefilterSize, "face size of the first prefiltered level")
	flags.IntVar(&args.settings.MaxLod, "max-lod", args.settings.MaxLod, "highest prefiltered mip level")
	flags.IntVar(&args.settings.LutSize, "lut-size", args.settings.LutSize, "edge length of the brdf lookup table")
	flags.IntVar(&args.settings.LutSamples, "lut-samples", args.settings.LutSamples, "samples per brdf lookup table texel")
}

func (args *bakeArgs) deviceType() (ibl.DeviceType, error) {
	return ibl.ParseDeviceType(args.device)
}

// packConfig is the JSON form of the pack arguments. Relative paths are
// resolved against the directory of the file.
type packConfig struct {
	Out                  string   `json:"out"`
	Assets               []string `json:"assets"`
	Equirect             string   `json:"equirect"`
	Irradiance           string   `json:"irradiance"`
	Prefiltered          string   `json:"prefiltered"`
	Brdf                 string   `json:"brdf"`
	Compress             bool     `json:"compress"`
	Srgb                 bool     `json:"srgb"`
	Mipmaps              string   `json:"mipmaps"`
	ContainerCompression *int     `json:"container_compression"`
	Workers              int      `json:"workers"`

	Impl           string `json:"impl"`
	Device         string `json:"device"`
	Samples        int    `json:"samples"`
	CubemapSize    int    `json:"cubemap_size"`
	IrradianceSize int    `json:"irradiance_size"`
	PrefilterSize  int    `json:"prefilter_size"`
	MaxLod         *int   `json:"max_lod"`
	LutSize        int    `json:"lut_size"`
	LutSamples     int    `json:"lut_samples"`
}

func loadPackConfig(path string) (*packConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, liberr.Wrap(liberr.KindIo, path, err)
	}

	var cfg packConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	root := filepath.Dir(path)
	for _, p := range []*string{&cfg.Out, &cfg.Equirect, &cfg.Irradiance, &cfg.Prefiltered, &cfg.Brdf} {
		*p = resolvePath(root, *p)
	}
	for i := range cfg.Assets {
		cfg.Assets[i] = resolvePath(root, cfg.Assets[i])
	}
	return &cfg, nil
}

func resolvePath(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, filepath.FromSlash(p))
}

// apply copies the config values whose flags were not given on the command line.
func (cfg *packConfig) apply(args *packArgs, set map[string]bool) error {
	given := func(names ...string) bool {
		for _, n := range names {
			if set[n] {
				return true
			}
		}
		return false
	}
	str := func(dst *string, src string, names ...string) {
		if src != "" && !given(names...) {
			*dst = src
		}
	}
	num := func(dst *int, src int, names ...string) {
		if src > 0 && !given(names...) {
			*dst = src
		}
	}

	str(&args.out, cfg.Out, "out", "o")
	str(&args.equirect, cfg.Equirect, "equirect")
	str(&args.irradiance, cfg.Irradiance, "irradiance")
	str(&args.prefiltered, cfg.Prefiltered, "prefiltered")
	str(&args.brdf, cfg.Brdf, "brdf")
	str(&args.bake.device, cfg.Device, "device")

	if cfg.Compress && !given("compress", "c") {
		args.compress = true
	}
	if cfg.Srgb && !given("srgb") {
		args.srgb = true
	}
	if cfg.Mipmaps != "" && !given("mipmaps") {
		if err := args.mipmaps.Set(cfg.Mipmaps); err != nil {
			return fmt.Errorf("config: mipmaps: %w", err)
		}
	}
	if cfg.Impl != "" && !given("impl") {
		if err := args.bake.impl.Set(cfg.Impl); err != nil {
			return fmt.Errorf("config: impl: %w", err)
		}
	}
	if cfg.ContainerCompression != nil && !given("container-compression") {
		args.containerCompression = *cfg.ContainerCompression
	}
	if cfg.MaxLod != nil && !given("max-lod") {
		args.bake.settings.MaxLod = *cfg.MaxLod
	}

	num(&args.workers, cfg.Workers, "workers")
	num(&args.bake.settings.Samples, cfg.Samples, "samples")
	num(&args.bake.settings.CubemapSize, cfg.CubemapSize, "cubemap-size")
	num(&args.bake.settings.IrradianceSize, cfg.IrradianceSize, "irradiance-size")
	num(&args.bake.settings.PrefilterSize, cfg.PrefilterSize, "prefilter-size")
	num(&args.bake.settings.LutSize, cfg.LutSize, "lut-size")
	num(&args.bake.settings.LutSamples, cfg.LutSamples, "lut-samples")

	if len(args.assets) == 0 {
		args.assets = cfg.Assets
	}
	return nil
}
