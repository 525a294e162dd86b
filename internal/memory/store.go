// internal/memory/store.go

// Package memory is the agent's durable record of past outcomes. It persists
// as a single human-inspectable JSON document and promotes repeated similar
// successes into reusable Skills. Persistence failures are reported to the
// caller, who logs and swallows them: memory trouble never aborts a run.
package memory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxSuccessEntries caps the success log; the oldest entry is evicted past it.
const maxSuccessEntries = 100

// skillThreshold is the number of similar successful goals that triggers
// skill synthesis.
const skillThreshold = 3

// similarityThreshold is the exclusive Jaccard lower bound for two goals to
// count as similar.
const similarityThreshold = 0.5

// ErrLocked is returned when another process holds the store's lock file.
var ErrLocked = errors.New("memory: store is locked by another process")

// SuccessRecord is one successfully executed goal.
type SuccessRecord struct {
	Goal        string         `json:"goal"`
	Domain      string         `json:"domain,omitempty"`
	Intent      string         `json:"intent,omitempty"`
	Steps       []schemas.Step `json:"steps,omitempty"`
	SuccessRate float64        `json:"success_rate"`
	Timestamp   time.Time      `json:"timestamp"`
}

// RecallContext is what the planner receives from a recall.
type RecallContext struct {
	SimilarGoals []SuccessRecord   `json:"similar_goals"`
	Skills       []schemas.Skill   `json:"skills"`
	Preferences  map[string]string `json:"preferences"`
}

// document is the on-disk shape.
type document struct {
	Skills      map[string]schemas.Skill `json:"skills"`
	Preferences map[string]string        `json:"preferences"`
	Successes   []SuccessRecord          `json:"successes"`
}

// Store is the durable memory. It enforces single-writer discipline with a
// lock file next to the document; concurrent agent instances must each open
// their own path or take turns.
type Store struct {
	logger   *zap.Logger
	path     string
	lockPath string
	doc      document
}

// Open loads (or initializes) the store at path and takes the process lock.
func Open(path string, logger *zap.Logger) (*Store, error) {
	s := &Store{
		logger:   logger.Named("memory"),
		path:     path,
		lockPath: path + ".lock",
		doc: document{
			Skills:      map[string]schemas.Skill{},
			Preferences: map[string]string{},
		},
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating memory directory: %w", err)
	}
	if err := s.acquireLock(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Fresh store.
	case err != nil:
		s.releaseLock()
		return nil, fmt.Errorf("reading memory file: %w", err)
	default:
		if err := json.Unmarshal(raw, &s.doc); err != nil {
			// A corrupt memory file must not brick the agent. Preserve it for
			// inspection and start over.
			s.logger.Warn("Memory file is corrupt; starting fresh",
				zap.String("path", path), zap.Error(err))
			_ = os.Rename(path, path+".corrupt")
			s.doc = document{Skills: map[string]schemas.Skill{}, Preferences: map[string]string{}}
		}
	}
	if s.doc.Skills == nil {
		s.doc.Skills = map[string]schemas.Skill{}
	}
	if s.doc.Preferences == nil {
		s.doc.Preferences = map[string]string{}
	}
	return s, nil
}

// Close releases the process lock.
func (s *Store) Close() {
	s.releaseLock()
}

func (s *Store) acquireLock() error {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			return f.Close()
		}
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("acquiring memory lock: %w", err)
		}
		if attempt == 0 && s.lockIsStale() {
			s.logger.Warn("Reclaiming stale memory lock", zap.String("path", s.lockPath))
			if rmErr := os.Remove(s.lockPath); rmErr == nil || errors.Is(rmErr, os.ErrNotExist) {
				continue
			}
		}
		break
	}
	return fmt.Errorf("%w (lock file %s)", ErrLocked, s.lockPath)
}

// lockIsStale reports whether the lock's recorded owner is gone. A garbled
// lock file counts as stale; an unreadable one does not.
func (s *Store) lockIsStale() bool {
	raw, err := os.ReadFile(s.lockPath)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return true
	}
	if pid == os.Getpid() {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return true
	}
	return proc.Signal(syscall.Signal(0)) != nil
}

func (s *Store) releaseLock() {
	if err := os.Remove(s.lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Failed to remove memory lock file", zap.Error(err))
	}
}

// Recall returns past goals similar to goal (Jaccard keyword similarity above
// 0.5), the skills learned for domain, and stored preferences.
func (s *Store) Recall(goal, domain string) RecallContext {
	rc := RecallContext{Preferences: s.doc.Preferences}

	goalKeywords := Keywords(goal)
	for _, rec := range s.doc.Successes {
		if Jaccard(goalKeywords, Keywords(rec.Goal)) > similarityThreshold {
			rc.SimilarGoals = append(rc.SimilarGoals, rec)
		}
	}

	for _, skill := range s.doc.Skills {
		if domain == "" || domainsMatch(skill.Domain, domain) {
			rc.Skills = append(rc.Skills, skill)
		}
	}
	return rc
}

// StoreSuccess appends a successful run to the capped history and, once the
// threshold of similar successes is reached, synthesizes a Skill. The write
// is atomic (temp file + rename).
func (s *Store) StoreSuccess(goal, domain string, plan *schemas.Plan, successRate float64) error {
	rec := SuccessRecord{
		Goal:        goal,
		Domain:      domain,
		Intent:      plan.Intent,
		Steps:       plan.Steps,
		SuccessRate: successRate,
		Timestamp:   time.Now(),
	}
	s.doc.Successes = append(s.doc.Successes, rec)
	if len(s.doc.Successes) > maxSuccessEntries {
		// Evict oldest.
		s.doc.Successes = s.doc.Successes[len(s.doc.Successes)-maxSuccessEntries:]
	}

	s.maybeSynthesizeSkill(rec)
	return s.save()
}

// SetPreference stores a flat preference and persists.
func (s *Store) SetPreference(key, value string) error {
	s.doc.Preferences[key] = value
	return s.save()
}

// Skills returns all learned skills.
func (s *Store) Skills() []schemas.Skill {
	out := make([]schemas.Skill, 0, len(s.doc.Skills))
	for _, sk := range s.doc.Skills {
		out = append(out, sk)
	}
	return out
}

// RecordSkillUse bumps a skill's usage counter and folds the run's outcome
// into its success rate.
func (s *Store) RecordSkillUse(name string, successRate float64) error {
	skill, ok := s.doc.Skills[name]
	if !ok {
		return fmt.Errorf("memory: unknown skill %q", name)
	}
	total := skill.SuccessRate*float64(skill.TimesUsed) + successRate
	skill.TimesUsed++
	skill.SuccessRate = total / float64(skill.TimesUsed)
	s.doc.Skills[name] = skill
	return s.save()
}

// maybeSynthesizeSkill promotes repeated evidence into a Skill: the Nth
// similar success (N = skillThreshold) creates it, counting the new record.
func (s *Store) maybeSynthesizeSkill(rec SuccessRecord) {
	keywords := Keywords(rec.Goal)
	similar := 0
	var rates float64
	for _, old := range s.doc.Successes {
		if Jaccard(keywords, Keywords(old.Goal)) > similarityThreshold || old.Goal == rec.Goal {
			similar++
			rates += old.SuccessRate
		}
	}
	if similar < skillThreshold {
		return
	}

	name := skillName(rec.Goal, rec.Domain)
	if _, exists := s.doc.Skills[name]; exists {
		return
	}
	s.doc.Skills[name] = schemas.Skill{
		Name:        name,
		Description: fmt.Sprintf("Learned from %d similar runs of %q", similar, rec.Goal),
		Domain:      rec.Domain,
		Template: schemas.PlanTemplate{
			Intent: rec.Intent,
			Steps:  rec.Steps,
		},
		SuccessRate: rates / float64(similar),
		CreatedAt:   time.Now(),
	}
	s.logger.Info("Synthesized new skill", zap.String("skill", name), zap.Int("evidence", similar))
}

// save writes the document atomically.
func (s *Store) save() error {
	raw, err := json.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling memory document: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("writing memory temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing memory file: %w", err)
	}
	return nil
}

// actionVerbs are the recognized leading verbs for skill naming.
var actionVerbs = []string{"login", "log", "sign", "search", "download", "submit", "fill", "open", "navigate", "find", "buy", "order"}

// skillName derives a stable name from the goal's first known action verb
// plus the domain's first label.
func skillName(goal, domain string) string {
	verb := "task"
	lower := strings.ToLower(goal)
	for _, v := range actionVerbs {
		if strings.Contains(lower, v) {
			verb = v
			break
		}
	}
	label := "general"
	if domain != "" {
		label = strings.Split(domain, ".")[0]
		label = strings.TrimPrefix(label, "www")
		if label == "" {
			label = "general"
		}
	}
	return verb + "_" + label
}

func domainsMatch(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	return la == lb || strings.Contains(la, lb) || strings.Contains(lb, la)
}
