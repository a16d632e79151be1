package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/coordinatordb/coord/internal/types"
)

// payload is the JSON shape stored in items.payload, carrying the fields
// specific to each ItemKind (spec.md §3). Keeping these out of the column
// list lets every kind share one table, the same discriminated-row pattern
// the teacher uses for issues with optional, kind-specific columns.
type payload struct {
	SourceConnector string             `json:"source_connector,omitempty"`
	CachingEnabled  bool               `json:"caching_enabled,omitempty"`
	Materialized    bool               `json:"materialized,omitempty"`
	SinkFrom        string             `json:"sink_from,omitempty"`
	SinkConnector   *sinkConnectorJSON `json:"sink_connector,omitempty"`
	IndexOn         string             `json:"index_on,omitempty"`
	IndexKeys       []string           `json:"index_keys,omitempty"`
	Uses            []string           `json:"uses,omitempty"`
	Type            *typeJSON          `json:"type,omitempty"`
}

type sinkConnectorJSON struct {
	PendingConnectorType string            `json:"pending_connector_type,omitempty"`
	PendingConfig        map[string]string `json:"pending_config,omitempty"`
	ReadyConnectorType   string            `json:"ready_connector_type,omitempty"`
	ReadyExternalID      string            `json:"ready_external_id,omitempty"`
}

type typeJSON struct {
	Kind          string  `json:"kind"`
	ElementTypeID *string `json:"element_type_id,omitempty"`
	KeyTypeID     *string `json:"key_type_id,omitempty"`
	ValueTypeID   *string `json:"value_type_id,omitempty"`
}

func encodeGlobalID(id types.GlobalId) string {
	return fmt.Sprintf("%d:%d", id.Kind, id.Value)
}

func decodeGlobalID(s string) (types.GlobalId, error) {
	var kind types.IDKind
	var value uint64
	if _, err := fmt.Sscanf(s, "%d:%d", &kind, &value); err != nil {
		return types.GlobalId{}, fmt.Errorf("catalog: decode global id %q: %w", s, err)
	}
	return types.GlobalId{Kind: kind, Value: value}, nil
}

func itemToPayload(item types.CatalogItem) payload {
	p := payload{
		SourceConnector: item.SourceConnector,
		CachingEnabled:  item.CachingEnabled,
		Materialized:    item.Materialized,
		SinkFrom:        encodeGlobalID(item.SinkFrom),
		IndexOn:         encodeGlobalID(item.IndexOn),
	}
	for _, k := range item.IndexKeys {
		p.IndexKeys = append(p.IndexKeys, k.Expr)
	}
	for _, u := range item.Uses {
		p.Uses = append(p.Uses, encodeGlobalID(u))
	}
	if item.SinkConnector.IsPending() {
		p.SinkConnector = &sinkConnectorJSON{
			PendingConnectorType: item.SinkConnector.Pending.ConnectorType,
			PendingConfig:        item.SinkConnector.Pending.Config,
		}
	} else if item.SinkConnector.IsReady() {
		p.SinkConnector = &sinkConnectorJSON{
			ReadyConnectorType: item.SinkConnector.Ready.ConnectorType,
			ReadyExternalID:    item.SinkConnector.Ready.ExternalID,
		}
	}
	if item.Type != nil {
		tj := &typeJSON{Kind: item.Type.Kind}
		if item.Type.ElementTypeID != nil {
			s := encodeGlobalID(*item.Type.ElementTypeID)
			tj.ElementTypeID = &s
		}
		if item.Type.KeyTypeID != nil {
			s := encodeGlobalID(*item.Type.KeyTypeID)
			tj.KeyTypeID = &s
		}
		if item.Type.ValueTypeID != nil {
			s := encodeGlobalID(*item.Type.ValueTypeID)
			tj.ValueTypeID = &s
		}
		p.Type = tj
	}
	return p
}

func payloadToItem(p payload, base types.CatalogItem) (types.CatalogItem, error) {
	item := base
	item.SourceConnector = p.SourceConnector
	item.CachingEnabled = p.CachingEnabled
	item.Materialized = p.Materialized
	for _, k := range p.IndexKeys {
		item.IndexKeys = append(item.IndexKeys, types.IndexKeyExpr{Expr: k})
	}
	for _, u := range p.Uses {
		id, err := decodeGlobalID(u)
		if err != nil {
			return item, err
		}
		item.Uses = append(item.Uses, id)
	}
	if p.SinkFrom != "" {
		id, err := decodeGlobalID(p.SinkFrom)
		if err != nil {
			return item, err
		}
		item.SinkFrom = id
	}
	if p.IndexOn != "" {
		id, err := decodeGlobalID(p.IndexOn)
		if err != nil {
			return item, err
		}
		item.IndexOn = id
	}
	if p.SinkConnector != nil {
		switch {
		case p.SinkConnector.ReadyConnectorType != "":
			item.SinkConnector = types.SinkConnectorState{Ready: &types.SinkConnector{
				ConnectorType: p.SinkConnector.ReadyConnectorType,
				ExternalID:    p.SinkConnector.ReadyExternalID,
			}}
		case p.SinkConnector.PendingConnectorType != "":
			item.SinkConnector = types.SinkConnectorState{Pending: &types.SinkConnectorBuilder{
				ConnectorType: p.SinkConnector.PendingConnectorType,
				Config:        p.SinkConnector.PendingConfig,
			}}
		}
	}
	if p.Type != nil {
		td := &types.TypeDescriptor{Kind: p.Type.Kind}
		for _, pair := range []struct {
			src *string
			dst **types.GlobalId
		}{{p.Type.ElementTypeID, &td.ElementTypeID}, {p.Type.KeyTypeID, &td.KeyTypeID}, {p.Type.ValueTypeID, &td.ValueTypeID}} {
			if pair.src != nil {
				id, err := decodeGlobalID(*pair.src)
				if err != nil {
					return item, err
				}
				*pair.dst = &id
			}
		}
		item.Type = td
	}
	return item, nil
}

func marshalPayload(item types.CatalogItem) (string, error) {
	b, err := json.Marshal(itemToPayload(item))
	if err != nil {
		return "", fmt.Errorf("catalog: marshal payload for %s: %w", item.ID, err)
	}
	return string(b), nil
}

func unmarshalPayload(raw string, base types.CatalogItem) (types.CatalogItem, error) {
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return base, fmt.Errorf("catalog: unmarshal payload for %s: %w", base.ID, err)
	}
	return payloadToItem(p, base)
}
