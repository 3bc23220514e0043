package domain

import (
	"fmt"
	"strings"
)

// Status: статус запроса поездки, как его хранит backend
type Status string

const (
	StatusCreated   Status = "created" // только локально, до отправки
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusStarted   Status = "started"
	StatusEnded     Status = "ended"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

// transitions: разрешённые переходы. Backend остаётся последней инстанцией,
// таблица лишь отсекает заведомо неверные запросы до сети.
var transitions = map[Status][]Status{
	StatusCreated:  {StatusPending},
	StatusPending:  {StatusAccepted, StatusCancelled, StatusRejected},
	StatusAccepted: {StatusStarted},
	StatusStarted:  {StatusEnded},
}

var ranks = map[Status]int{
	StatusCreated:   0,
	StatusPending:   1,
	StatusAccepted:  2,
	StatusStarted:   3,
	StatusEnded:     4,
	StatusCancelled: 4,
	StatusRejected:  4,
}

// ParseStatus normalizes a backend status string.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := ranks[st]; !ok {
		return "", fmt.Errorf("%w: unknown status %q", ErrValidationFailed, s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := ranks[s]
	return ok
}

// Terminal: ended, cancelled, rejected
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusCancelled || s == StatusRejected
}

// Rank: позиция статуса вдоль pending→accepted→started→ended
func (s Status) Rank() int {
	return ranks[s]
}

// CanTransition сообщает, разрешён ли переход from → to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsStale сообщает, что снимок со статусом next нельзя применять после last.
// Повтор того же статуса не считается устаревшим.
func IsStale(last, next Status) bool {
	if last == "" || last == next {
		return false
	}
	if last.Terminal() {
		return true
	}
	return next.Rank() < last.Rank()
}
