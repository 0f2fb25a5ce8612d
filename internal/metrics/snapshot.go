package metrics

import (
	"bytes"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// SnapshotWriter persists an encoded snapshot, e.g. results.Collector.WriteRoot.
type SnapshotWriter func(name string, data []byte) error

// EncodeSnapshot gathers g and encodes it in the Prometheus text format.
func EncodeSnapshot(g prometheus.Gatherer) ([]byte, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	return encodeFamilies(families)
}

func encodeFamilies(families []*dto.MetricFamily) ([]byte, error) {
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return nil, fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	if closer, ok := enc.(expfmt.Closer); ok {
		if err := closer.Close(); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// WriteSnapshot gathers g and hands the text encoding to write under name.
func WriteSnapshot(g prometheus.Gatherer, name string, write SnapshotWriter) error {
	data, err := EncodeSnapshot(g)
	if err != nil {
		return err
	}
	if err := write(name, data); err != nil {
		return fmt.Errorf("write metrics snapshot: %w", err)
	}
	return nil
}
