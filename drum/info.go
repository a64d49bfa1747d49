package drum

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// WriteSummary prints a human readable overview of d.
func (d *Drum) WriteSummary(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Drum %s (version %d)\n\n", d.ID, CurrentVersion)

	fmt.Fprintf(tw, "Textures (%d)\n", len(d.Textures))
	fmt.Fprintf(tw, "  #\tname\tformat\tsize\tmips\tflags\tbytes\n")
	for i := range d.Textures {
		tex := &d.Textures[i]
		var flags []string
		if tex.Cubemap {
			flags = append(flags, "cubemap")
		}
		if tex.Compressed {
			flags = append(flags, "compressed")
		}
		flags = append(flags, tex.ColorSpace.String())
		fmt.Fprintf(tw, "  %d\t%s\t%v\t%dx%d\t%d\t%s\t%d\n", i, tex.Name, tex.Format, tex.Width, tex.Height, tex.Mips, strings.Join(flags, ","), len(tex.Data))
	}

	fmt.Fprintf(tw, "\nModels (%d)\n", len(d.Models))
	fmt.Fprintf(tw, "  #\tname\tvertices\ttriangles\tinstances\ttextures\n")
	for i := range d.Models {
		m := &d.Models[i]
		var slots []string
		for slot, h := range m.Material.Textures {
			if h != NoTexture {
				slots = append(slots, fmt.Sprintf("%v=%d", MaterialSlot(slot), h))
			}
		}
		if m.Material.Transparent {
			slots = append(slots, "transparent")
		}
		fmt.Fprintf(tw, "  %d\t%s\t%d\t%d\t%d\t%s\n", i, m.Name, len(m.Mesh.Vertices), len(m.Mesh.Indices)/3, len(m.Instances), strings.Join(slots, " "))
	}

	fmt.Fprintf(tw, "\nLights (%d)\n", len(d.Lights))
	for i, l := range d.Lights {
		fmt.Fprintf(tw, "  %d\tposition %v\tcolor %v\tintensity %g\n", i, l.Position, l.Color, l.Intensity)
	}

	if env := d.Environment; env != nil {
		fmt.Fprintf(tw, "\nEnvironment\n")
		for slot, h := range env.Textures {
			if h == NoTexture {
				fmt.Fprintf(tw, "  %v\t-\n", IblSlot(slot))
				continue
			}
			fmt.Fprintf(tw, "  %v\t%d\n", IblSlot(slot), h)
		}
		fmt.Fprintf(tw, "  prefiltered mips\t%d\n", env.PrefilteredMips)
	}

	return tw.Flush()
}
