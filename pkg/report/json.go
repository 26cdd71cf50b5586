package report

import (
	"encoding/json"
	"io"

	"github.com/daviddao/airlock/pkg/device"
	"github.com/daviddao/airlock/pkg/inventory"
)

// Snapshot is the machine-readable form of Details.
type Snapshot struct {
	Airlocks   []AirlockInfo   `json:"airlocks"`
	BaseTanks  []string        `json:"base_tanks"`
	Generators []string        `json:"generators"`
	AutoClose  []AutoCloseInfo `json:"auto_close"`
}

// AirlockInfo lists the blocks of one airlock by name.
type AirlockInfo struct {
	ID           string   `json:"id"`
	Inner        []string `json:"inner"`
	Outer        []string `json:"outer"`
	Vents        []string `json:"vents"`
	ButtonsInner []string `json:"buttons_inner"`
	ButtonsOuter []string `json:"buttons_outer"`
	SensorsInner []string `json:"sensors_inner"`
	SensorsOuter []string `json:"sensors_outer"`
	Lights       []string `json:"lights"`
	ProcessTanks []string `json:"process_tanks"`
}

// AutoCloseInfo is one watched door.
type AutoCloseInfo struct {
	Door       string `json:"door"`
	LimitTicks int    `json:"limit_ticks"`
}

// Build collects a snapshot of inv.
func Build(inv *inventory.Inventory) Snapshot {
	s := Snapshot{
		Airlocks:   []AirlockInfo{},
		BaseTanks:  nameList(blocks(inv.BaseTanks())),
		Generators: nameList(blocks(inv.Generators())),
		AutoClose:  []AutoCloseInfo{},
	}
	for _, al := range inv.Airlocks() {
		s.Airlocks = append(s.Airlocks, AirlockInfo{
			ID:           al.ID,
			Inner:        nameList(blocks(al.Inner)),
			Outer:        nameList(blocks(al.Outer)),
			Vents:        nameList(blocks(al.Vents)),
			ButtonsInner: nameList(al.ButtonsInner),
			ButtonsOuter: nameList(al.ButtonsOuter),
			SensorsInner: nameList(al.SensorsInner),
			SensorsOuter: nameList(al.SensorsOuter),
			Lights:       nameList(blocks(al.Lights)),
			ProcessTanks: nameList(blocks(al.ProcessTanks)),
		})
	}
	for _, d := range inv.AutoClose() {
		s.AutoClose = append(s.AutoClose, AutoCloseInfo{Door: d.Door.Name(), LimitTicks: d.LimitTicks})
	}
	return s
}

// WriteJSON writes v indented, followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func nameList(bs []device.Block) []string {
	out := make([]string, 0, len(bs))
	for _, b := range bs {
		out = append(out, b.Name())
	}
	return out
}
