// Package workflow は記事の公開ワークフローの状態遷移規則を提供する。
//
// 遷移は (現在の状態, 要求された状態, 操作者) の組で判定され、
// 表に存在しない組はすべてTransitionErrorとなる。隣接状態への読み替えや
// 何もしない成功は行わない。
package workflow

import (
	"fmt"
	"time"

	"github.com/hitoshi/cybershield/internal/model"
)

// Actor は遷移を要求する操作者の種別。
type Actor string

const (
	// ActorOwner は記事の著者本人。
	ActorOwner Actor = "owner"
	// ActorAdmin は管理者。
	ActorAdmin Actor = "admin"
)

type edge struct {
	from model.ArticleStatus
	to   model.ArticleStatus
}

// transitions は許可された遷移と、その遷移を実行できる操作者の表。
var transitions = map[edge][]Actor{
	{model.StatusDraft, model.StatusPending}:      {ActorOwner},
	{model.StatusRejected, model.StatusPending}:   {ActorOwner, ActorAdmin},
	{model.StatusPending, model.StatusApproved}:   {ActorAdmin},
	{model.StatusPending, model.StatusRejected}:   {ActorAdmin},
	{model.StatusApproved, model.StatusPublished}: {ActorAdmin},
	{model.StatusPublished, model.StatusApproved}: {ActorAdmin},
	{model.StatusApproved, model.StatusPending}:   {ActorAdmin},
}

// TransitionError は表にない遷移が要求されたことを表す。
type TransitionError struct {
	From  model.ArticleStatus
	To    model.ArticleStatus
	Actor Actor
}

// Error はerrorインターフェースを実装する。
func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition for current state: %s cannot move article from %q to %q", e.Actor, e.From, e.To)
}

// Check はactorがfromからtoへ遷移できるかを判定する。
func Check(from, to model.ArticleStatus, actor Actor) error {
	for _, a := range transitions[edge{from, to}] {
		if a == actor {
			return nil
		}
	}
	return &TransitionError{From: from, To: to, Actor: actor}
}

// Targets はactorがfromから遷移できる状態の一覧を返す。
// 管理画面で操作ボタンを出し分けるために使用する。
func Targets(from model.ArticleStatus, actor Actor) []model.ArticleStatus {
	var out []model.ArticleStatus
	for _, to := range model.AllStatuses {
		if Check(from, to, actor) == nil {
			out = append(out, to)
		}
	}
	return out
}

// Apply は遷移を検証し、成功した場合は副作用を含めて記事に反映する。
// reasonは差し戻し理由で、rejectedへの遷移でのみ使用される。
// 検証に失敗した場合、記事は変更されない。
func Apply(a *model.Article, to model.ArticleStatus, actor Actor, reason string, now time.Time) error {
	if err := Check(a.Status, to, actor); err != nil {
		return err
	}

	a.Status = to

	switch {
	case to == model.StatusPending && actor == ActorOwner:
		// 著者による提出は前回の差し戻し理由を消す
		a.RejectionReason = ""
	case to == model.StatusRejected:
		if reason != "" {
			a.RejectionReason = reason
		}
	case to == model.StatusPublished:
		t := now
		a.PublishedAt = &t
	}

	return nil
}

// CanEditContent は記事本文などの編集が許可されるかを返す。
// 著者はdraftとrejectedでのみ編集でき、adminは状態に関係なく編集できる。
func CanEditContent(status model.ArticleStatus, isAdmin bool) bool {
	if isAdmin {
		return true
	}
	return status == model.StatusDraft || status == model.StatusRejected
}

// CanDelete は記事の削除が許可される状態かを返す。
func CanDelete(status model.ArticleStatus) bool {
	return status == model.StatusDraft || status == model.StatusRejected
}
