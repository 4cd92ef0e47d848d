package game

import "sort"

// cell is one occupied square in the canonical snapshot form.
type cell struct {
	Square string `msgpack:"square"`
	Kind   int    `msgpack:"kind"`
	Owner  Side   `msgpack:"owner"`
}

// canonicalState is the wire form of a full snapshot. Cells are sorted by
// square so semantically equal boards serialize to identical bytes, which
// the digest check depends on.
type canonicalState struct {
	Cells        []cell `msgpack:"cells"`
	HostReserve  []int  `msgpack:"host_reserve"`
	GuestReserve []int  `msgpack:"guest_reserve"`
	TurnOwner    Side   `msgpack:"turn_owner"`
	TurnIndex    uint64 `msgpack:"turn_index"`
}

func canonicalize(s gridState) canonicalState {
	cells := make([]cell, 0, len(s.Board))
	for sq, p := range s.Board {
		cells = append(cells, cell{Square: sq, Kind: p.Kind, Owner: p.Owner})
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].Square < cells[j].Square })

	return canonicalState{
		Cells:        cells,
		HostReserve:  s.Reserves[SideHost],
		GuestReserve: s.Reserves[SideGuest],
		TurnOwner:    s.TurnOwner,
		TurnIndex:    s.TurnIndex,
	}
}
