package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/haasonsaas/skilllite/pkg/models"
)

// Persistence layout under the chat home:
//
//	sessions.json
//	transcripts/<session_key>-YYYY-MM-DD.jsonl
//	plans/<session_key>-YYYY-MM-DD.json

// Info is one row in sessions.json.
type Info struct {
	SessionID  string    `json:"session_id"`
	SessionKey string    `json:"session_key"`
	Workspace  string    `json:"workspace"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Persister reads and writes session state under a chat home directory.
type Persister struct {
	root string
}

// NewPersister builds a persister rooted at the chat home.
func NewPersister(root string) *Persister {
	return &Persister{root: root}
}

func (p *Persister) sessionsPath() string {
	return filepath.Join(p.root, "sessions.json")
}

func (p *Persister) transcriptPath(key string) string {
	return filepath.Join(p.root, "transcripts",
		fmt.Sprintf("%s-%s.jsonl", key, time.Now().UTC().Format("2006-01-02")))
}

func (p *Persister) planPath(key string) string {
	return filepath.Join(p.root, "plans",
		fmt.Sprintf("%s-%s.json", key, time.Now().UTC().Format("2006-01-02")))
}

// SaveInfo upserts the session row in sessions.json.
func (p *Persister) SaveInfo(s *State) error {
	infos := map[string]Info{}
	if data, err := os.ReadFile(p.sessionsPath()); err == nil {
		_ = json.Unmarshal(data, &infos)
	}
	infos[s.SessionKey] = Info{
		SessionID:  s.SessionID,
		SessionKey: s.SessionKey,
		Workspace:  s.Workspace,
		UpdatedAt:  time.Now().UTC(),
	}
	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(p.root, 0o755); err != nil {
		return err
	}
	return os.WriteFile(p.sessionsPath(), data, 0o644)
}

// AppendTranscript appends messages to the session's JSONL transcript.
func (p *Persister) AppendTranscript(key string, messages []models.ChatMessage) error {
	path := p.transcriptPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, m := range messages {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	return w.Flush()
}

// ReadTranscript loads the session's transcript for today, returning an
// empty slice when none exists.
func (p *Persister) ReadTranscript(key string) ([]models.ChatMessage, error) {
	f, err := os.Open(p.transcriptPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var messages []models.ChatMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var m models.ChatMessage
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			continue
		}
		messages = append(messages, m)
	}
	return messages, scanner.Err()
}

// SavePlan snapshots the task plan.
func (p *Persister) SavePlan(key string, plan *models.TaskPlan) error {
	path := p.planPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadPlan loads the task plan snapshot, returning nil when none exists.
func (p *Persister) ReadPlan(key string) (*models.TaskPlan, error) {
	data, err := os.ReadFile(p.planPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var plan models.TaskPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}
