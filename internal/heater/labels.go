package heater

import (
	"context"
	"fmt"
	"maps"

	"github.com/shipfacts/shipfacts/internal/dbgate"
	"github.com/shipfacts/shipfacts/internal/miners/pr"
)

// labelStore is the slice of the facts store the sync uses.
type labelStore interface {
	ScanLabels(ctx context.Context, account int64, fn func(pr.StoredLabels) error) error
	UpdateLabels(ctx context.Context, row pr.StoredLabels, labels map[string]string) error
}

// metadataLabelFetch resolves the current label sets of a batch of PRs from
// the metadata store.
type metadataLabelFetch func(ctx context.Context, ids []int64) (map[int64]map[string]string, error)

// syncLabels reconciles the label maps stored alongside PR facts with the
// metadata store. Stored rows are compared case-folded and rewritten only
// when they differ; metadata lookups run in batches to bound round-trips.
func syncLabels(ctx context.Context, store labelStore, fetch metadataLabelFetch, account int64, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	var batch []pr.StoredLabels
	updated := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		ids := make([]int64, len(batch))
		for i, row := range batch {
			ids[i] = row.PRNodeID
		}
		current, err := fetch(ctx, ids)
		if err != nil {
			return err
		}
		for _, row := range batch {
			want := pr.FoldLabels(current[row.PRNodeID])
			if maps.Equal(pr.FoldLabels(row.Labels), want) {
				continue
			}
			if err := store.UpdateLabels(ctx, row, want); err != nil {
				return err
			}
			updated++
		}
		batch = batch[:0]
		return nil
	}
	err := store.ScanLabels(ctx, account, func(row pr.StoredLabels) error {
		batch = append(batch, row)
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return updated, err
	}
	return updated, flush()
}

// fetchMetadataLabels reads the current labels of a batch of PRs.
func fetchMetadataLabels(mdb *dbgate.Pool, metaIDs []int64) metadataLabelFetch {
	return func(ctx context.Context, ids []int64) (map[int64]map[string]string, error) {
		rows, err := mdb.Query(ctx,
			`SELECT pull_request_node_id, name FROM github.pull_request_labels
			 WHERE acc_id = ANY($1) AND pull_request_node_id = ANY($2)`,
			metaIDs, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch metadata labels: %w", err)
		}
		defer rows.Close()
		out := make(map[int64]map[string]string, len(ids))
		for rows.Next() {
			var id int64
			var name string
			if err := rows.Scan(&id, &name); err != nil {
				return nil, fmt.Errorf("failed to scan label row: %w", err)
			}
			if out[id] == nil {
				out[id] = map[string]string{}
			}
			out[id][name] = ""
		}
		return out, rows.Err()
	}
}
