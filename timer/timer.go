// timer/timer.go
package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wfunc/rpsarena/logger"
)

type TimerTask struct {
	Id       int64
	Execute  time.Time
	Interval time.Duration
	Callback func()

	timer clockwork.Timer
}

// TimerManager runs callbacks after a delay, optionally repeating, on the
// injected clock.
type TimerManager struct {
	clock   clockwork.Clock
	tasks   map[int64]*TimerTask
	mutex   sync.Mutex
	nextId  int64
	stopped bool
}

func NewTimerManager(clock clockwork.Clock) *TimerManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TimerManager{
		clock:  clock,
		tasks:  make(map[int64]*TimerTask),
		nextId: 1,
	}
}

// AddTimer schedules callback after delay. A positive interval re-arms the
// task after each run until it is removed. It returns 0 once stopped.
func (m *TimerManager) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.stopped {
		return 0
	}

	task := &TimerTask{
		Id:       m.nextId,
		Execute:  m.clock.Now().Add(delay),
		Interval: interval,
		Callback: callback,
	}
	m.nextId++

	m.tasks[task.Id] = task
	m.armLocked(task, delay)
	return task.Id
}

func (m *TimerManager) armLocked(task *TimerTask, delay time.Duration) {
	task.timer = m.clock.AfterFunc(delay, func() {
		m.fire(task)
	})
}

func (m *TimerManager) fire(task *TimerTask) {
	m.mutex.Lock()
	if m.tasks[task.Id] != task {
		m.mutex.Unlock()
		return
	}
	if task.Interval > 0 {
		task.Execute = m.clock.Now().Add(task.Interval)
		m.armLocked(task, task.Interval)
	} else {
		delete(m.tasks, task.Id)
	}
	m.mutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logger.Log.Errorf("timer %d callback panicked: %v", task.Id, r)
		}
	}()
	task.Callback()
}

// RemoveTimer cancels a pending task. Unknown ids are ignored.
func (m *TimerManager) RemoveTimer(timerId int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if task, ok := m.tasks[timerId]; ok {
		task.timer.Stop()
		delete(m.tasks, timerId)
	}
}

// Len reports how many tasks are pending.
func (m *TimerManager) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.tasks)
}

// Stop cancels every pending task and rejects new ones.
func (m *TimerManager) Stop() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.stopped = true
	for id, task := range m.tasks {
		task.timer.Stop()
		delete(m.tasks, id)
	}
}
