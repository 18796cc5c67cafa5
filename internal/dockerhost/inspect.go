package dockerhost

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"docker-monitor/internal/models"
)

var errEmptyInspect = errors.New("empty inspect output")

type inspectDoc struct {
	ID      string `json:"Id"`
	Name    string `json:"Name"`
	Created string `json:"Created"`
	State   struct {
		Status    string `json:"Status"`
		StartedAt string `json:"StartedAt"`
	} `json:"State"`
	Config struct {
		Image  string            `json:"Image"`
		Labels map[string]string `json:"Labels"`
	} `json:"Config"`
}

// psEntry docker ps --format json 的一行
type psEntry struct {
	ID     string `json:"ID"`
	Names  string `json:"Names"`
	Image  string `json:"Image"`
	Status string `json:"Status"`
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

/**
 * Build a container record from docker inspect output
 * @param {[]byte} raw - Either the CLI's JSON array or a single inspect object
 * @param {string} hostName - Owning host
 * @param {string} source - "local" or "ssh"
 * @returns {*models.ContainerRecord} Record with attrs holding the single inspect object
 * @returns {error} Parse error, or errEmptyInspect for "[]"
 */
func RecordFromInspect(raw []byte, hostName, source string) (*models.ContainerRecord, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var docs []json.RawMessage
		if err := json.Unmarshal(raw, &docs); err != nil {
			return nil, err
		}
		if len(docs) == 0 {
			return nil, errEmptyInspect
		}
		raw = docs[0]
	}

	var doc inspectDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	labels := doc.Config.Labels
	if labels == nil {
		labels = map[string]string{}
	}
	status := doc.State.Status
	if status == "" {
		status = "unknown"
	}
	return &models.ContainerRecord{
		ID:       doc.ID,
		ShortID:  shortID(doc.ID),
		Name:     strings.TrimPrefix(doc.Name, "/"),
		Status:   status,
		Image:    doc.Config.Image,
		Labels:   labels,
		Attrs:    append(json.RawMessage(nil), raw...),
		HostName: hostName,
		Source:   source,
	}, nil
}

func parsePsLine(line string) (psEntry, error) {
	var e psEntry
	err := json.Unmarshal([]byte(line), &e)
	return e, err
}

type eventLine struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Type     string `json:"Type"`
	Action   string `json:"Action"`
	Time     int64  `json:"time"`
	TimeNano int64  `json:"timeNano"`
	Actor    struct {
		ID string `json:"ID"`
	} `json:"Actor"`
}

/**
 * Parse one line of "docker events --format json"
 * @param {string} hostName - Host the stream belongs to
 * @param {string} line - Raw JSON line
 * @returns {models.ContainerEvent} Parsed event
 * @returns {bool} False when the line is not a container event
 * @returns {error} JSON parse error
 */
func ParseEventLine(hostName, line string) (models.ContainerEvent, bool, error) {
	var e eventLine
	if err := json.Unmarshal([]byte(line), &e); err != nil {
		return models.ContainerEvent{}, false, err
	}
	if e.Type != "" && e.Type != "container" {
		return models.ContainerEvent{}, false, nil
	}
	id := e.Actor.ID
	if id == "" {
		id = e.ID
	}
	action := e.Action
	if action == "" {
		action = e.Status
	}
	if id == "" || action == "" {
		return models.ContainerEvent{}, false, nil
	}
	ts := time.Now()
	if e.TimeNano > 0 {
		ts = time.Unix(0, e.TimeNano)
	} else if e.Time > 0 {
		ts = time.Unix(e.Time, 0)
	}
	return models.ContainerEvent{
		HostName:    hostName,
		ContainerID: id,
		Action:      action,
		Time:        ts,
	}, true, nil
}
