// Package i18n renders client-facing error messages in the supported locales.
package i18n

import (
	"fmt"
	"sort"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"dfund/internal/domain"
)

// Codes used by the transport layer that are not ledger error codes.
const (
	CodeBadRequest    = "REQUEST_INVALID"
	CodeUnauthorized  = "UNAUTHENTICATED"
	CodeInternalError = "INTERNAL_ERROR"
	CodeRateLimited   = "RATE_LIMITED"
)

var messages = map[language.Tag]map[string]string{
	language.English: {
		domain.CodeTitleEmpty:             "Project title must not be empty.",
		domain.CodeCreatorRequired:        "A creator account is required.",
		domain.CodeGoalNotPositive:        "The funding goal must be greater than zero.",
		domain.CodeDeadlineNotFuture:      "The deadline must be in the future.",
		domain.CodeProjectNotFound:        "Project not found.",
		domain.CodeProjectNotFundable:     "This project is not accepting donations.",
		domain.CodeStatusTransition:       "The project cannot move to that status.",
		domain.CodeAmountNotPositive:      "The donation amount must be greater than zero.",
		domain.CodeAmountOverflow:         "The donation amount is too large.",
		domain.CodeDonorRequired:          "A donor account is required.",
		domain.CodeAlreadyFinalized:       "The project has already been finalized.",
		domain.CodeDeadlineNotReached:     "The funding deadline has not passed yet.",
		domain.CodeNotCreator:             "Only the project creator may do this.",
		domain.CodeGoalNotMet:             "The funding goal was not met.",
		domain.CodeGoalMet:                "The funding goal was met, so refunds are not available.",
		domain.CodeNotRefunding:           "Refunds are not open for this project.",
		domain.CodeNothingToRefund:        "There is nothing left to refund for this account.",
		domain.CodeReviewNotRequested:     "Expert review was not requested for this project.",
		domain.CodeReviewAlreadyEnabled:   "Expert review is already enabled.",
		domain.CodeReviewNotEnabled:       "Expert review is not enabled for this project.",
		domain.CodeReviewWindowClosed:     "The review window is closed.",
		domain.CodeReviewAlreadySubmitted: "This reviewer has already submitted a review.",
		domain.CodeReviewNotFound:         "Review not found.",
		domain.CodeCommentEmpty:           "A review comment is required.",
		domain.CodeReviewerRequired:       "A reviewer account is required.",
		domain.CodeReviewerNotOnPanel:     "This account is not on the expert review panel.",
		domain.CodeCreatorCannotReview:    "Creators cannot review their own project.",
		domain.CodeVotingDeadlineInvalid:  "The voting deadline must be in the future and no later than the project deadline.",
		domain.CodeConcurrentUpdate:       "The project was being updated by another request. Please retry.",
		CodeBadRequest:                    "The request could not be read.",
		CodeUnauthorized:                  "Authentication is required.",
		CodeInternalError:                 "Something went wrong. Please try again later.",
		CodeRateLimited:                   "Too many requests. Please slow down.",
	},
	language.Korean: {
		domain.CodeTitleEmpty:             "프로젝트 제목을 입력해 주세요.",
		domain.CodeCreatorRequired:        "창작자 계정이 필요합니다.",
		domain.CodeGoalNotPositive:        "목표 금액은 0보다 커야 합니다.",
		domain.CodeDeadlineNotFuture:      "마감일은 미래여야 합니다.",
		domain.CodeProjectNotFound:        "프로젝트를 찾을 수 없습니다.",
		domain.CodeProjectNotFundable:     "이 프로젝트는 후원을 받고 있지 않습니다.",
		domain.CodeStatusTransition:       "프로젝트를 해당 상태로 변경할 수 없습니다.",
		domain.CodeAmountNotPositive:      "후원 금액은 0보다 커야 합니다.",
		domain.CodeAmountOverflow:         "후원 금액이 너무 큽니다.",
		domain.CodeDonorRequired:          "후원자 계정이 필요합니다.",
		domain.CodeAlreadyFinalized:       "이미 정산이 끝난 프로젝트입니다.",
		domain.CodeDeadlineNotReached:     "아직 펀딩 마감일이 지나지 않았습니다.",
		domain.CodeNotCreator:             "프로젝트 창작자만 할 수 있습니다.",
		domain.CodeGoalNotMet:             "목표 금액을 달성하지 못했습니다.",
		domain.CodeGoalMet:                "목표 금액을 달성하여 환불할 수 없습니다.",
		domain.CodeNotRefunding:           "이 프로젝트는 환불 중이 아닙니다.",
		domain.CodeNothingToRefund:        "환불받을 금액이 없습니다.",
		domain.CodeReviewNotRequested:     "이 프로젝트는 전문가 심사를 요청하지 않았습니다.",
		domain.CodeReviewAlreadyEnabled:   "전문가 심사가 이미 시작되었습니다.",
		domain.CodeReviewNotEnabled:       "전문가 심사가 시작되지 않았습니다.",
		domain.CodeReviewWindowClosed:     "심사 기간이 종료되었습니다.",
		domain.CodeReviewAlreadySubmitted: "이미 심사를 제출했습니다.",
		domain.CodeReviewNotFound:         "심사를 찾을 수 없습니다.",
		domain.CodeCommentEmpty:           "심사 의견을 입력해 주세요.",
		domain.CodeReviewerRequired:       "심사자 계정이 필요합니다.",
		domain.CodeReviewerNotOnPanel:     "전문가 심사단에 포함되지 않은 계정입니다.",
		domain.CodeCreatorCannotReview:    "창작자는 자신의 프로젝트를 심사할 수 없습니다.",
		domain.CodeVotingDeadlineInvalid:  "심사 마감일은 현재 이후이며 프로젝트 마감일보다 늦을 수 없습니다.",
		domain.CodeConcurrentUpdate:       "다른 요청이 프로젝트를 처리하는 중입니다. 다시 시도해 주세요.",
		CodeBadRequest:                    "요청을 읽을 수 없습니다.",
		CodeUnauthorized:                  "인증이 필요합니다.",
		CodeInternalError:                 "문제가 발생했습니다. 잠시 후 다시 시도해 주세요.",
		CodeRateLimited:                   "요청이 너무 많습니다. 잠시 후 다시 시도해 주세요.",
	},
}

// Catalog looks up localized messages by code.
type Catalog struct {
	cat     catalog.Catalog
	matcher language.Matcher
	tags    []language.Tag
}

// New builds the catalog from the embedded message tables.
func New() (*Catalog, error) {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	tags := []language.Tag{language.English, language.Korean}
	for _, tag := range tags {
		table := messages[tag]
		keys := make([]string, 0, len(table))
		for key := range table {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if err := b.SetString(tag, key, table[key]); err != nil {
				return nil, fmt.Errorf("register %s/%s: %w", tag, key, err)
			}
		}
	}
	return &Catalog{cat: b, matcher: language.NewMatcher(tags), tags: tags}, nil
}

// MustNew is New for package-level wiring; it panics on a malformed table.
func MustNew() *Catalog {
	c, err := New()
	if err != nil {
		panic(err)
	}
	return c
}

// Message returns the message for code in locale. Unknown codes yield
// fallback; an unknown locale uses English.
func (c *Catalog) Message(locale, code, fallback string) string {
	tag := c.match(locale)
	if !c.has(tag, code) {
		if c.has(language.English, code) {
			tag = language.English
		} else {
			return fallback
		}
	}
	return message.NewPrinter(tag, message.Catalog(c.cat)).Sprintf(code)
}

func (c *Catalog) match(locale string) language.Tag {
	parsed, err := language.Parse(locale)
	if err != nil {
		return language.English
	}
	_, idx, _ := c.matcher.Match(parsed)
	return c.tags[idx]
}

func (c *Catalog) has(tag language.Tag, code string) bool {
	_, ok := messages[tag][code]
	return ok
}
