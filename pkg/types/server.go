package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ServerID identifies a server within one directory snapshot. Directories
// emit it either as a JSON number or a string; both decode to the same value.
type ServerID string

func (id *ServerID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ServerID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("server id: %w", err)
	}
	*id = ServerID(n.String())
	return nil
}

// MapInfo describes the map a server is currently running.
type MapInfo struct {
	Name  string `json:"name" yaml:"name"`
	Alias string `json:"alias" yaml:"alias"`
}

// ServerRecord is a snapshot of one remote server at fetch time.
type ServerRecord struct {
	ID        ServerID `json:"id" yaml:"id"`
	Game      string   `json:"game" yaml:"game"`
	Name      string   `json:"serverName" yaml:"serverName"`
	Occupancy int      `json:"clientNum" yaml:"clientNum"`
	Capacity  int      `json:"maxClients" yaml:"maxClients"`
	Map       MapInfo  `json:"currentMap" yaml:"currentMap"`
	Address   string   `json:"listenAddress" yaml:"listenAddress"`
	Port      int      `json:"listenPort" yaml:"listenPort"`
}

// Endpoint returns the address:port pair used by the connect command. The
// address is used verbatim; IPv6 literals are not bracketed.
func (s ServerRecord) Endpoint() string {
	return s.Address + ":" + strconv.Itoa(s.Port)
}

// HasFreeSlot reports whether at least one player slot is open. Records with
// occupancy above capacity are treated as full.
func (s ServerRecord) HasFreeSlot() bool {
	return s.Occupancy < s.Capacity
}

// StatusSummary renders occupancy and map as a single comparable line.
func (s ServerRecord) StatusSummary() string {
	return fmt.Sprintf("%d/%d - %s - %s", s.Occupancy, s.Capacity, s.Map.Name, s.Map.Alias)
}

// Snapshot is the filtered result of one directory fetch.
type Snapshot struct {
	Endpoint  string         `json:"endpoint" yaml:"endpoint"`
	FetchedAt time.Time      `json:"fetched_at" yaml:"fetched_at"`
	Servers   []ServerRecord `json:"servers" yaml:"servers"`
}

// Find returns the record with the given id, if present.
func (s Snapshot) Find(id ServerID) (ServerRecord, bool) {
	return FindServer(s.Servers, id)
}

func FindServer(servers []ServerRecord, id ServerID) (ServerRecord, bool) {
	for _, srv := range servers {
		if srv.ID == id {
			return srv, true
		}
	}
	return ServerRecord{}, false
}
