package controller

import (
	"sort"
	"sync"
	"time"

	"cv-console/internal/stream"
)

// CameraStats статистика потока одной камеры
type CameraStats struct {
	CameraID       string       `json:"camera_id"`
	State          stream.State `json:"state"`
	StartTime      time.Time    `json:"start_time"`
	FirstFrame     *time.Time   `json:"first_frame,omitempty"`
	LastFrame      *time.Time   `json:"last_frame,omitempty"`
	FramesReceived int64        `json:"frames_received"`
	BytesReceived  int64        `json:"bytes_received"`
	CurrentFPS     float64      `json:"current_fps"`
	AverageFPS     float64      `json:"average_fps"`
	Connections    int64        `json:"connections"`
}

// StatsRepository - in-memory статистика по камерам
type StatsRepository struct {
	stats map[string]*CameraStats
	now   func() time.Time
	mu    sync.RWMutex
}

// NewStatsRepository создает новый репозиторий
func NewStatsRepository() *StatsRepository {
	return &StatsRepository{
		stats: make(map[string]*CameraStats),
		now:   time.Now,
	}
}

// getOrCreate вызывается под блокировкой
func (r *StatsRepository) getOrCreate(cameraID string) *CameraStats {
	stats, exists := r.stats[cameraID]
	if !exists {
		stats = &CameraStats{
			CameraID:  cameraID,
			State:     stream.StateInactive,
			StartTime: r.now(),
		}
		r.stats[cameraID] = stats
	}
	return stats
}

// RecordState обновляет состояние. Каждое connected считается новым соединением.
func (r *StatsRepository) RecordState(cameraID string, state stream.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := r.getOrCreate(cameraID)
	stats.State = state
	if state == stream.StateConnected {
		stats.Connections++
	}
}

// MarkInactive отмечает камеру без клиента, если она уже известна
func (r *StatsRepository) MarkInactive(cameraID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if stats, ok := r.stats[cameraID]; ok {
		stats.State = stream.StateInactive
	}
}

// RecordFrame учитывает кадр
func (r *StatsRepository) RecordFrame(cameraID string, size int, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := r.getOrCreate(cameraID)
	stats.FramesReceived++
	stats.BytesReceived += int64(size)

	if stats.FirstFrame == nil {
		first := at
		stats.FirstFrame = &first
	}
	last := at
	stats.LastFrame = &last

	// Средний FPS с момента начала наблюдения
	if d := at.Sub(stats.StartTime).Seconds(); d > 0 {
		stats.AverageFPS = float64(stats.FramesReceived) / d
	}
}

// RecordFPS сохраняет fps, сообщенный источником
func (r *StatsRepository) RecordFPS(cameraID string, fps float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.getOrCreate(cameraID).CurrentFPS = fps
}

// GetStats возвращает копию статистики камеры
func (r *StatsRepository) GetStats(cameraID string) (CameraStats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats, ok := r.stats[cameraID]
	if !ok {
		return CameraStats{}, false
	}
	return *stats, true
}

// GetAllStats возвращает статистику всех камер, отсортированную по id
func (r *StatsRepository) GetAllStats() []CameraStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]CameraStats, 0, len(r.stats))
	for _, stats := range r.stats {
		all = append(all, *stats)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CameraID < all[j].CameraID })

	return all
}

// Remove удаляет статистику камеры
func (r *StatsRepository) Remove(cameraID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.stats, cameraID)
}
