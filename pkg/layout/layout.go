// Package layout reads station layout files.
//
// A layout is YAML listing rooms and the blocks placed in them:
//
//	rooms:
//	  - id: habitat
//	  - id: a1
//	    oxygen: 0.95
//	blocks:
//	  - name: "Door [A1:Outer]"
//	    kind: door
//	    room: a1
//	    leads_to: space
//	  - name: "O2 [A1:ProcessTank]"
//	    kind: tank
//	    fill: 0.1
//	    enabled: false
//
// Blocks are enabled and attached unless the file says otherwise. Rooms start
// at full oxygen. Handles are assigned in file order unless given.
package layout

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/daviddao/airlock/pkg/device"
	"github.com/daviddao/airlock/pkg/model"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid layout")

// File is the decoded form of a layout file.
type File struct {
	Rooms  []Room  `yaml:"rooms"`
	Blocks []Block `yaml:"blocks"`
}

// Room is one room entry.
type Room struct {
	ID     string   `yaml:"id"`
	Oxygen *float64 `yaml:"oxygen"`
}

// Block is one block entry. Pointer fields distinguish "absent" from the
// zero value.
type Block struct {
	Handle   uint64   `yaml:"handle"`
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"`
	Room     string   `yaml:"room"`
	LeadsTo  string   `yaml:"leads_to"`
	Enabled  *bool    `yaml:"enabled"`
	Attached *bool    `yaml:"attached"`
	Door     string   `yaml:"door"`
	Fill     *float64 `yaml:"fill"`
	Capture  bool     `yaml:"capture"`
	Color    string   `yaml:"color"`
}

// Parse decodes and validates layout bytes into store records.
func Parse(data []byte) (model.Station, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return model.Station{}, fmt.Errorf("%w: layout is empty", ErrInvalid)
	}
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return model.Station{}, fmt.Errorf("layout: decode: %w", err)
	}
	return f.Station()
}

// Load reads a layout from r.
func Load(r io.Reader) (model.Station, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return model.Station{}, fmt.Errorf("layout: read: %w", err)
	}
	return Parse(content)
}

// LoadFile reads a layout from path.
func LoadFile(path string) (model.Station, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return model.Station{}, fmt.Errorf("layout: read %s: %w", path, err)
	}
	st, err := Parse(content)
	if err != nil {
		return model.Station{}, fmt.Errorf("layout: %s: %w", path, err)
	}
	return st, nil
}

// Station validates f and converts it. All problems are reported together.
func (f File) Station() (model.Station, error) {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	st := model.Station{}
	rooms := map[string]bool{}
	for i, r := range f.Rooms {
		switch {
		case r.ID == "":
			bad("room %d has no id", i)
			continue
		case r.ID == model.Space:
			bad("room id %q is reserved", r.ID)
			continue
		case rooms[r.ID]:
			bad("duplicate room %q", r.ID)
			continue
		}
		rooms[r.ID] = true
		oxygen := 1.0
		if r.Oxygen != nil {
			oxygen = *r.Oxygen
		}
		if !unit(oxygen) {
			bad("room %q: oxygen %v outside [0,1]", r.ID, oxygen)
		}
		st.Rooms = append(st.Rooms, model.Room{ID: r.ID, Oxygen: oxygen})
	}

	handles := map[uint64]string{}
	var maxHandle uint64
	for _, b := range f.Blocks {
		if b.Handle == 0 {
			continue
		}
		if prev, dup := handles[b.Handle]; dup {
			bad("handle %d used by %q and %q", b.Handle, prev, b.Name)
		}
		handles[b.Handle] = b.Name
		maxHandle = max(maxHandle, b.Handle)
	}

	for i, b := range f.Blocks {
		label := b.Name
		if label == "" {
			bad("block %d has no name", i)
			label = fmt.Sprintf("#%d", i)
		}
		kind := device.Kind(b.Kind)
		if !kind.Valid() {
			bad("block %q: unknown kind %q", label, b.Kind)
		}
		if (kind == device.KindVent || kind == device.KindDoor) && b.Room == "" {
			bad("%s %q has no room", kind, label)
		}
		if b.Room != "" && !rooms[b.Room] {
			bad("block %q: unknown room %q", label, b.Room)
		}

		rec := model.Block{
			Handle:   b.Handle,
			Name:     b.Name,
			Kind:     b.Kind,
			Room:     b.Room,
			Attached: b.Attached == nil || *b.Attached,
			State:    model.BlockState{Enabled: b.Enabled == nil || *b.Enabled},
		}
		if rec.Handle == 0 {
			maxHandle++
			rec.Handle = maxHandle
		}

		switch kind {
		case device.KindDoor:
			rec.LeadsTo = b.LeadsTo
			if rec.LeadsTo == "" {
				rec.LeadsTo = model.Space
			}
			if rec.LeadsTo != model.Space && !rooms[rec.LeadsTo] {
				bad("door %q leads to unknown room %q", label, rec.LeadsTo)
			}
			if rec.LeadsTo == b.Room {
				bad("door %q leads back into its own room", label)
			}
			status, err := device.ParseDoorStatus(b.Door)
			if err != nil {
				bad("door %q: %v", label, err)
			}
			rec.State.Door = status.String()
		case device.KindTank:
			if b.Fill != nil {
				rec.State.Fill = *b.Fill
			}
			if !unit(rec.State.Fill) {
				bad("tank %q: fill %v outside [0,1]", label, rec.State.Fill)
			}
			rec.State.Capture = b.Capture
		case device.KindLight:
			color := device.White
			if b.Color != "" {
				c, err := device.ParseColor(b.Color)
				if err != nil {
					bad("light %q: %v", label, err)
				}
				color = c
			}
			rec.State.Color = color.String()
		}
		if b.LeadsTo != "" && kind != device.KindDoor {
			bad("block %q: leads_to is only valid on doors", label)
		}
		if b.Fill != nil && kind != device.KindTank {
			bad("block %q: fill is only valid on tanks", label)
		}
		st.Blocks = append(st.Blocks, rec)
	}

	if err := errors.Join(errs...); err != nil {
		return model.Station{}, err
	}
	return st, nil
}

func unit(f float64) bool { return f >= 0 && f <= 1 }
