package recovery

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Checkpoint is spec §4.9's `{checkpoint_lsn, active_txns, persist_data}`.
// persist_data is the one place this engine holds a full, unbounded
// in-memory snapshot of the kv map, so it's kept zstd-compressed at rest
// (DOMAIN STACK) rather than as a live Go map — Data/NewCheckpoint are the
// only ways in or out.
type Checkpoint struct {
	CheckpointLSN LSN
	ActiveTxns    map[TxnID]LSN

	compressed []byte
}

// NewCheckpoint compresses data into a checkpoint snapshot.
func NewCheckpoint(checkpointLSN LSN, activeTxns map[TxnID]LSN, data map[string]int32) (*Checkpoint, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(data); err != nil {
		return nil, fmt.Errorf("recovery: encode checkpoint data: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("recovery: new zstd encoder: %w", err)
	}
	defer enc.Close()
	compressed := enc.EncodeAll(buf.Bytes(), nil)

	active := make(map[TxnID]LSN, len(activeTxns))
	for k, v := range activeTxns {
		active[k] = v
	}
	return &Checkpoint{CheckpointLSN: checkpointLSN, ActiveTxns: active, compressed: compressed}, nil
}

// Data decompresses and decodes the checkpoint's persisted kv snapshot.
func (c *Checkpoint) Data() (map[string]int32, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("recovery: new zstd decoder: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(c.compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("recovery: decompress checkpoint data: %w", err)
	}
	var data map[string]int32
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&data); err != nil {
		return nil, fmt.Errorf("recovery: decode checkpoint data: %w", err)
	}
	return data, nil
}
