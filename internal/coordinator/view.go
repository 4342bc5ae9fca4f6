package coordinator

import (
	"maps"
	"sync"
)

// View is one actor's local model of the ledger. Optimistic changes are applied here
// before the store confirms them.
type View struct {
	mu         sync.RWMutex
	balances   map[string]int64
	liked      map[string]bool
	likeCounts map[string]int
	following  map[string]bool
	answers    map[string]bool
	questions  map[string]bool
}

func NewView() *View {
	return &View{
		balances:   make(map[string]int64),
		liked:      make(map[string]bool),
		likeCounts: make(map[string]int),
		following:  make(map[string]bool),
		answers:    make(map[string]bool),
		questions:  make(map[string]bool),
	}
}

// Scope lists the keys a mutation may touch. Only these are captured and restored.
type Scope struct {
	Balances  []string
	Likes     []string // question ids; covers both liked-by-me and like count
	Following []string
	Answers   []string
	Questions []string
}

type entry[T any] struct {
	value   T
	present bool
}

func capture[T any](m map[string]T, keys []string) map[string]entry[T] {
	out := make(map[string]entry[T], len(keys))
	for _, k := range keys {
		v, ok := m[k]
		out[k] = entry[T]{value: v, present: ok}
	}
	return out
}

func restore[T any](m map[string]T, saved map[string]entry[T]) {
	for k, e := range saved {
		if e.present {
			m[k] = e.value
		} else {
			delete(m, k)
		}
	}
}

// Snapshot is the pre-mutation state of a Scope, including which keys were absent
type Snapshot struct {
	balances   map[string]entry[int64]
	liked      map[string]entry[bool]
	likeCounts map[string]entry[int]
	following  map[string]entry[bool]
	answers    map[string]entry[bool]
	questions  map[string]entry[bool]
}

func (v *View) Capture(scope Scope) Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return Snapshot{
		balances:   capture(v.balances, scope.Balances),
		liked:      capture(v.liked, scope.Likes),
		likeCounts: capture(v.likeCounts, scope.Likes),
		following:  capture(v.following, scope.Following),
		answers:    capture(v.answers, scope.Answers),
		questions:  capture(v.questions, scope.Questions),
	}
}

// Restore puts every captured key back exactly as it was, removing keys that were absent
func (v *View) Restore(s Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	restore(v.balances, s.balances)
	restore(v.liked, s.liked)
	restore(v.likeCounts, s.likeCounts)
	restore(v.following, s.following)
	restore(v.answers, s.answers)
	restore(v.questions, s.questions)
}

// ViewState is a full copy of the view, used to compare before and after
type ViewState struct {
	Balances   map[string]int64
	Liked      map[string]bool
	LikeCounts map[string]int
	Following  map[string]bool
	Answers    map[string]bool
	Questions  map[string]bool
}

func (v *View) Export() ViewState {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return ViewState{
		Balances:   maps.Clone(v.balances),
		Liked:      maps.Clone(v.liked),
		LikeCounts: maps.Clone(v.likeCounts),
		Following:  maps.Clone(v.following),
		Answers:    maps.Clone(v.answers),
		Questions:  maps.Clone(v.questions),
	}
}

func (v *View) Balance(accountId string) (int64, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	b, ok := v.balances[accountId]
	return b, ok
}

func (v *View) SetBalance(accountId string, balance int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[accountId] = balance
}

// AddBalance applies delta to a known balance. Unknown balances stay unknown and a
// result below zero is clamped, matching how the store settles unlike debits.
func (v *View) AddBalance(accountId string, delta int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	b, ok := v.balances[accountId]
	if !ok {
		return
	}
	b += delta
	if b < 0 {
		b = 0
	}
	v.balances[accountId] = b
}

func (v *View) Liked(questionId string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.liked[questionId]
}

func (v *View) LikeCount(questionId string) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.likeCounts[questionId]
}

// SetLike records the actor's like state and the question's like count as read from the store
func (v *View) SetLike(questionId string, liked bool, count int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.liked[questionId] = liked
	v.likeCounts[questionId] = count
}

// ToggleLike flips liked-by-me and moves the like count with it
func (v *View) ToggleLike(questionId string, liked bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.liked[questionId] == liked {
		return
	}
	v.liked[questionId] = liked
	if liked {
		v.likeCounts[questionId]++
	} else if v.likeCounts[questionId] > 0 {
		v.likeCounts[questionId]--
	}
}

func (v *View) Following(accountId string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.following[accountId]
}

func (v *View) SetFollowing(accountId string, following bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.following[accountId] = following
}

func (v *View) HasAnswer(answerId string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.answers[answerId]
}

func (v *View) SetAnswer(answerId string, present bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if present {
		v.answers[answerId] = true
	} else {
		delete(v.answers, answerId)
	}
}

func (v *View) HasQuestion(questionId string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.questions[questionId]
}

func (v *View) SetQuestion(questionId string, present bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if present {
		v.questions[questionId] = true
	} else {
		delete(v.questions, questionId)
	}
}
