package extent

import (
	"strings"

	"github.com/valvemist/vmbackup/nbdclient"
)

// NBDHandler queries extents via the transport's negotiated
// block-status metadata context, merging the server's (length, flags)
// pairs into the disk-independent Extent sequence.
//
// The query loop mirrors the short-reply/long-reply handling an NBD
// server may use: a short reply covers less than the requested range
// and must be re-requested from where it left off, while a long reply
// may run past the requested range and is consumed in full to minimize
// round trips.
type NBDHandler struct {
	Transport nbdclient.Transport
}

const maxStatusQuery = 1 << 30 // 1 GiB per block-status call

// QueryBlockStatus implements Handler.
func (h *NBDHandler) QueryBlockStatus() ([]Extent, error) {
	size := h.Transport.Size()
	if !h.Transport.MetaContextNegotiated() {
		return nil, nil
	}

	// qemu:dirty-bitmap:* contexts reuse bit 0 of base:allocation for
	// the opposite meaning (dirty, not hole) — which flag to test
	// depends on the context actually negotiated, not a fixed bit.
	dirtyBitmap := strings.HasPrefix(h.Transport.MetaContext(), "qemu:dirty-bitmap:")

	var raw []Extent
	var offset uint64
	for offset < size {
		length := size - offset
		if length > maxStatusQuery {
			length = maxStatusQuery
		}

		entries, err := h.Transport.BlockStatus(offset, length)
		if err != nil {
			return nil, err
		}

		for _, e := range entries {
			if offset >= size {
				break
			}
			l := uint64(e.Length)
			if offset+l > size {
				l = size - offset
			}
			data := (e.Flags & nbdclient.StateHole) == 0
			if dirtyBitmap {
				data = (e.Flags & nbdclient.StateDirty) != 0
			}
			raw = append(raw, Extent{Offset: offset, Length: l, Data: data})
			offset += l
		}
	}

	return Merge(raw, size), nil
}
