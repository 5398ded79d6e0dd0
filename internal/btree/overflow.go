package btree

import (
	"slices"

	"github.com/golang/snappy"

	"github.com/alexhholmes/leafdb/internal/base"
)

// storeValue decides how value is kept in a leaf. Values above the inline
// threshold are snappy compressed when enabled and it helps; whatever is
// still too large goes to a newly written overflow chain.
func (tx *txn) storeValue(value []byte) (base.ValueRef, error) {
	t := tx.tree
	payload, compressed := value, false
	if t.compress && len(value) > t.inline {
		if enc := snappy.Encode(nil, value); len(enc) < len(value) {
			payload, compressed = enc, true
		}
	}

	if len(payload) <= t.inline {
		return base.ValueRef{
			Inline:     slices.Clone(payload),
			Length:     uint32(len(payload)),
			Compressed: compressed,
		}, nil
	}

	head, err := tx.writeOverflow(payload)
	if err != nil {
		return base.ValueRef{}, err
	}
	return base.ValueRef{
		Overflow:   head,
		Length:     uint32(len(payload)),
		Compressed: compressed,
	}, nil
}

// writeOverflow writes payload to a chain of fresh pages and returns its head.
func (tx *txn) writeOverflow(payload []byte) (base.PageID, error) {
	t := tx.tree
	chunk := t.geo.OverflowPayload()
	n := (len(payload) + chunk - 1) / chunk

	ids := make([]base.PageID, n)
	for i := range ids {
		id, err := tx.allocate()
		if err != nil {
			return 0, err
		}
		ids[i] = id
	}

	buf := make([]byte, t.geo.PageSize)
	for i, id := range ids {
		var next base.PageID
		if i+1 < n {
			next = ids[i+1]
		}
		part := payload[i*chunk : min((i+1)*chunk, len(payload))]
		if err := base.EncodeOverflow(buf, id, part, next); err != nil {
			return 0, err
		}
		if err := t.store.Write(id, buf); err != nil {
			return 0, err
		}
	}
	return ids[0], nil
}

// releaseValue frees the overflow chain behind ref, if any.
func (tx *txn) releaseValue(ref base.ValueRef) error {
	if !ref.IsOverflow() {
		return nil
	}
	return tx.tree.walkOverflow(ref, func(id base.PageID, _ []byte) {
		tx.release(id)
	})
}

// readValue materializes a value, following its overflow chain and undoing
// compression.
func (t *Tree) readValue(ref base.ValueRef) ([]byte, error) {
	payload := ref.Inline
	if ref.IsOverflow() {
		payload = make([]byte, 0, ref.Length)
		err := t.walkOverflow(ref, func(_ base.PageID, part []byte) {
			payload = append(payload, part...)
		})
		if err != nil {
			return nil, err
		}
	}

	if !ref.Compressed {
		if payload == nil {
			payload = []byte{}
		}
		return payload, nil
	}
	value, err := snappy.Decode(nil, payload)
	if err != nil {
		return nil, base.Corruptf(ref.Overflow, "compressed value: %v", err)
	}
	return value, nil
}

// walkOverflow visits every page of the chain behind ref and verifies that
// the chain carries exactly ref.Length bytes.
func (t *Tree) walkOverflow(ref base.ValueRef, fn func(id base.PageID, payload []byte)) error {
	chunk := t.geo.OverflowPayload()
	maxPages := (int(ref.Length) + chunk - 1) / chunk

	var total, pages int
	for id := ref.Overflow; id != 0; pages++ {
		if pages >= maxPages {
			return base.Corruptf(ref.Overflow, "overflow chain longer than %d pages", maxPages)
		}
		buf, err := t.store.Read(id)
		if err != nil {
			return err
		}
		part, next, err := base.DecodeOverflow(buf, id)
		if err != nil {
			return err
		}
		fn(id, part)
		total += len(part)
		id = next
	}

	if total != int(ref.Length) {
		return base.Corruptf(ref.Overflow, "overflow chain holds %d bytes, entry says %d", total, ref.Length)
	}
	return nil
}
