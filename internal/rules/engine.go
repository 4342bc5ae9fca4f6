/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package rules

import (
	"fmt"

	"qna-coin-ledger-go/internal/store"
)

// Action names an engagement action the engine can decide on
type Action string

const (
	ActionLike           Action = "like"
	ActionUnlike         Action = "unlike"
	ActionFollow         Action = "follow"
	ActionUnfollow       Action = "unfollow"
	ActionDeleteAnswer   Action = "delete_answer"
	ActionDeleteQuestion Action = "delete_question"
	ActionUpdateProfile  Action = "update_profile"
)

// Costs holds the coin amounts attached to engagement actions
type Costs struct {
	LikeReward     int64 `yaml:"like_reward"`
	DeleteAnswer   int64 `yaml:"delete_answer"`
	DeleteQuestion int64 `yaml:"delete_question"`
	ProfileUpdate  int64 `yaml:"profile_update"`
}

// DefaultCosts returns the platform's standard coin amounts
func DefaultCosts() Costs {
	return Costs{
		LikeReward:     10,
		DeleteAnswer:   9,
		DeleteQuestion: 5,
		ProfileUpdate:  4,
	}
}

// Validate rejects negative amounts
func (c Costs) Validate() error {
	if c.LikeReward < 0 || c.DeleteAnswer < 0 || c.DeleteQuestion < 0 || c.ProfileUpdate < 0 {
		return fmt.Errorf("coin amounts cannot be negative: %+v", c)
	}
	return nil
}

// Actor is the account performing an action, as last read from the store
type Actor struct {
	Id      string
	IsAdmin bool
	Balance int64
}

// Target is the state the decision depends on. OwnerId is the question or answer author,
// or the account being followed; it is empty for anonymous questions.
type Target struct {
	EntityId  string
	OwnerId   string
	Liked     bool
	Following bool
	NameTaken bool
}

// Decision is the outcome of Decide. When Err is set nothing may be written. A Noop
// decision is allowed but changes nothing because the target already has the
// requested state.
type Decision struct {
	Action          Action
	Allowed         bool
	Noop            bool
	ActorDelta      int64
	TargetDelta     int64
	TargetAccountId string
	Cost            int64
	Err             error
}

// Engine decides whether an action is permitted and which coin deltas it carries.
// It has no side effects.
type Engine struct {
	costs Costs
}

func NewEngine(costs Costs) *Engine {
	return &Engine{costs: costs}
}

func (e *Engine) Costs() Costs {
	return e.costs
}

func (e *Engine) Decide(action Action, actor Actor, target Target) Decision {
	switch action {
	case ActionLike:
		return e.decideLike(actor, target)
	case ActionUnlike:
		return e.decideUnlike(target)
	case ActionFollow, ActionUnfollow:
		return e.decideFollow(action, actor, target)
	case ActionDeleteAnswer:
		return e.decideDelete(action, actor, target, e.costs.DeleteAnswer)
	case ActionDeleteQuestion:
		return e.decideDelete(action, actor, target, e.costs.DeleteQuestion)
	case ActionUpdateProfile:
		return e.decideProfile(actor, target)
	}
	return deny(action, fmt.Errorf("unknown action %q", action))
}

func deny(action Action, err error) Decision {
	return Decision{Action: action, Err: err}
}

func (e *Engine) decideLike(actor Actor, target Target) Decision {
	if target.OwnerId != "" && target.OwnerId == actor.Id {
		return deny(ActionLike, store.ErrSelfActionForbidden)
	}
	if target.Liked {
		return Decision{Action: ActionLike, Allowed: true, Noop: true}
	}
	d := Decision{Action: ActionLike, Allowed: true}
	// Anonymous questions have nobody to credit
	if target.OwnerId != "" {
		d.TargetAccountId = target.OwnerId
		d.TargetDelta = e.costs.LikeReward
	}
	return d
}

func (e *Engine) decideUnlike(target Target) Decision {
	if !target.Liked {
		return Decision{Action: ActionUnlike, Allowed: true, Noop: true}
	}
	d := Decision{Action: ActionUnlike, Allowed: true}
	if target.OwnerId != "" {
		d.TargetAccountId = target.OwnerId
		d.TargetDelta = -e.costs.LikeReward
	}
	return d
}

func (e *Engine) decideFollow(action Action, actor Actor, target Target) Decision {
	if target.OwnerId == actor.Id {
		return deny(action, store.ErrSelfActionForbidden)
	}
	want := action == ActionFollow
	if target.Following == want {
		return Decision{Action: action, Allowed: true, Noop: true}
	}
	return Decision{Action: action, Allowed: true, TargetAccountId: target.OwnerId}
}

func (e *Engine) decideDelete(action Action, actor Actor, target Target, cost int64) Decision {
	if actor.IsAdmin {
		return Decision{Action: action, Allowed: true, TargetAccountId: target.OwnerId}
	}
	// Anonymous content has no owner, so only admins get past this check
	if target.OwnerId == "" || target.OwnerId != actor.Id {
		return deny(action, store.ErrPermissionDenied)
	}
	if actor.Balance < cost {
		return deny(action, store.NewInsufficientFunds(cost, actor.Balance))
	}
	return Decision{
		Action:          action,
		Allowed:         true,
		ActorDelta:      -cost,
		Cost:            cost,
		TargetAccountId: target.OwnerId,
	}
}

func (e *Engine) decideProfile(actor Actor, target Target) Decision {
	if target.NameTaken {
		return deny(ActionUpdateProfile, store.ErrNameTaken)
	}
	if actor.IsAdmin {
		return Decision{Action: ActionUpdateProfile, Allowed: true}
	}
	cost := e.costs.ProfileUpdate
	if actor.Balance < cost {
		return deny(ActionUpdateProfile, store.NewInsufficientFunds(cost, actor.Balance))
	}
	return Decision{Action: ActionUpdateProfile, Allowed: true, ActorDelta: -cost, Cost: cost}
}
