// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"errors"
	"math"
	"testing"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

func TestIdKeeper(t *testing.T) {
	var keeper = NewIdKeeper()

	id0, _ := keeper.next(23)
	id1, _ := keeper.next(23)
	other, _ := keeper.next(42)

	if seq := id0.Sequence(); seq != 0 {
		t.Errorf("First bundle's sequence number is %d", seq)
	}
	if seq := id1.Sequence(); seq != 1 {
		t.Errorf("Second bundle's sequence number is %d", seq)
	}
	if seq := other.Sequence(); seq != 0 {
		t.Errorf("Other source's first sequence number is %d", seq)
	}

	for _, id := range []bundle.ID{id0, id1} {
		if src := id.Source(); src != 23 {
			t.Errorf("Bundle %v has source %v", id, src)
		}
	}

	if n := keeper.sent(23); n != 2 {
		t.Errorf("Keeper handed out %d IDs for 23, expected 2", n)
	}
}

func TestIdKeeperExhausted(t *testing.T) {
	var keeper = NewIdKeeper()
	keeper.data[23] = math.MaxUint32

	if id, err := keeper.next(23); err != nil {
		t.Fatal(err)
	} else if seq := id.Sequence(); seq != math.MaxUint32 {
		t.Fatalf("Last sequence number is %d", seq)
	}

	if id, err := keeper.next(23); !errors.Is(err, ErrSequenceExhausted) {
		t.Fatalf("Expected ErrSequenceExhausted, got %v and %v", id, err)
	}
	if id, err := keeper.next(23); !errors.Is(err, ErrSequenceExhausted) {
		t.Fatalf("Sequence wrapped around to %v", id)
	}

	if id, err := keeper.next(42); err != nil || id.Sequence() != 0 {
		t.Fatalf("Other source got %v, %v", id, err)
	}
}
