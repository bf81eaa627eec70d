package modules

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/poemonsense/antigravity-proxy-go/internal/models"
	"github.com/poemonsense/antigravity-proxy-go/internal/utils"
)

// UsageStats is an opt-in request tracker backed by a local SQLite usage
// log (UsageStore), adapted from the teacher's Redis-backed module of the
// same name.
type UsageStats struct {
	store       *UsageStore
	mu          sync.Mutex
	initialized bool
	stopChan    chan struct{}
}

// NewUsageStats wraps store. A nil store disables tracking entirely
// (Track/GetHistory become no-ops) so callers can wire this optionally.
func NewUsageStats(store *UsageStore) *UsageStats {
	return &UsageStats{store: store, stopChan: make(chan struct{})}
}

// Start begins the hourly background prune; safe to call once.
func (u *UsageStats) Start() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.initialized || u.store == nil {
		return
	}
	go u.backgroundPrune()
	u.initialized = true
	utils.Info("[UsageStats] started")
}

func (u *UsageStats) Shutdown() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.initialized {
		return
	}
	close(u.stopChan)
	u.initialized = false
}

func (u *UsageStats) backgroundPrune() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-u.stopChan:
			return
		case <-ticker.C:
			pruned, err := u.store.PruneOlderThan(context.Background(), 30)
			if err != nil {
				utils.Warn("[UsageStats] prune failed: %v", err)
			} else if pruned > 0 {
				utils.Debug("[UsageStats] pruned %d old rows", pruned)
			}
		}
	}
}

// Track records one completed request against account/model/outcome.
func (u *UsageStats) Track(accountEmail string, model models.Model, outcome string) {
	if u.store == nil {
		return
	}
	family := "other"
	switch model.Family() {
	case models.FamilyClaude:
		family = "claude"
	case models.FamilyGemini:
		family = "gemini"
	}
	if err := u.store.RecordRequest(context.Background(), accountEmail, family, model.APIID(""), outcome); err != nil {
		utils.Debug("[UsageStats] record failed: %v", err)
	}
}

// History returns hourly usage history for the last 30 days, sorted
// chronologically.
func (u *UsageStats) History(ctx context.Context) ([]*HourlyCount, error) {
	if u.store == nil {
		return nil, nil
	}
	buckets, err := u.store.History(ctx, 30)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*HourlyCount, 0, len(keys))
	for _, k := range keys {
		out = append(out, buckets[k])
	}
	return out, nil
}

// SetupRoutes registers GET <group>/stats/history.
func (u *UsageStats) SetupRoutes(group *gin.RouterGroup) {
	group.GET("/stats/history", u.handleGetHistory)
}

func (u *UsageStats) handleGetHistory(c *gin.Context) {
	history, err := u.History(c.Request.Context())
	if err != nil {
		utils.Error("[UsageStats] history query failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}
