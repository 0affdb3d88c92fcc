// Package agentcache keeps one ready-to-run analyst per (client, platform)
// pair. Entries live in process memory; their serializable part is also
// kept in a relational table so a restarted process can rebuild an engine
// without fetching the client rows again.
package agentcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/easeaico/marketing-analyst/internal/dataframe"
	"github.com/easeaico/marketing-analyst/internal/engine"
	"github.com/easeaico/marketing-analyst/internal/memory"
	"github.com/easeaico/marketing-analyst/internal/platform"
)

// ErrEmptyClient is returned for a key without a client id.
var ErrEmptyClient = errors.New("client id is required")

// Key identifies a cache entry.
type Key struct {
	ClientID string
	Platform platform.Platform
}

// NewKey validates the platform name and builds a key.
func NewKey(clientID, platformName string) (Key, error) {
	if clientID == "" {
		return Key{}, ErrEmptyClient
	}
	p, err := platform.Parse(platformName)
	if err != nil {
		return Key{}, err
	}
	return Key{ClientID: clientID, Platform: p}, nil
}

// String returns the "{client}_{platform}" form used in logs and metrics.
func (k Key) String() string {
	return k.ClientID + "_" + string(k.Platform)
}

func (k Key) validate() error {
	if k.ClientID == "" {
		return ErrEmptyClient
	}
	if !k.Platform.Valid() {
		return fmt.Errorf("%w %q", platform.ErrUnknownPlatform, string(k.Platform))
	}
	return nil
}

// Metadata describes the cached frame.
type Metadata struct {
	ClientID    string `json:"client_id"`
	Platform    string `json:"platform"`
	RowCount    int    `json:"row_count"`
	ColumnCount int    `json:"column_count"`
}

// Persistable is the part of an entry that survives a restart.
type Persistable struct {
	Frame     *dataframe.Frame `json:"dataframe"`
	Metadata  Metadata         `json:"metadata"`
	CreatedAt time.Time        `json:"created_at"`
}

// Live holds process-bound handles. It is never serialized.
type Live struct {
	Engine    engine.Engine
	Retriever *memory.Retriever
}

// Entry is a resolved analyst.
type Entry struct {
	Key Key
	Live
	Persistable
}

// clientEntries is the durable value stored per client: every cached
// platform of that client.
type clientEntries map[string]Persistable

func encodeEntries(e clientEntries) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache entries: %w", err)
	}
	return data, nil
}

func decodeEntries(data []byte) (clientEntries, error) {
	e := clientEntries{}
	if len(data) == 0 {
		return e, nil
	}
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode cache entries: %w", err)
	}
	return e, nil
}

func (p *Persistable) check(key Key) error {
	if p.Frame == nil {
		return errors.New("cached entry has no dataframe")
	}
	if p.Metadata.ClientID != key.ClientID || p.Metadata.Platform != string(key.Platform) {
		return fmt.Errorf("cached entry belongs to %s_%s", p.Metadata.ClientID, p.Metadata.Platform)
	}
	return nil
}
