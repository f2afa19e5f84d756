// Package validate はDMで受け取った会員プロフィール入力を検証する。
// 入力形式は "email, full name, birth date, nickname" の4フィールド。
package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/verifybot/internal/model"
)

// Code は検証失敗理由の種別。
type Code string

const (
	CodeWrongFieldCount  Code = "WRONG_FIELD_COUNT"
	CodeInvalidEmail     Code = "INVALID_EMAIL"
	CodeEmptyName        Code = "EMPTY_NAME"
	CodeNameTooShort     Code = "NAME_TOO_SHORT"
	CodeInvalidBirthDate Code = "INVALID_BIRTH_DATE"
	CodeEmptyNickname    Code = "EMPTY_NICKNAME"
)

const (
	// FieldCount は入力に必要なカンマ区切りフィールド数。
	FieldCount = 4
	// MinNameLength は氏名の最小文字数（トリム後、ルーン数）。
	MinNameLength = 2

	// Usage はユーザーに提示する入力形式。
	Usage = "`email, full name, birth date (dd-mm-yyyy), nickname`"
	// Example はユーザーに提示する入力例。
	Example = "`john@example.com, John Doe, 25-12-2000, johnny`"
)

// AcceptedDateFormats は受け付ける生年月日の形式（試行順）。
var AcceptedDateFormats = []string{"DD-MM-YYYY", "DD-MM", "DD/MM"}

var emailPattern = regexp.MustCompile(`(?i)^[a-z0-9_.+-]+@[a-z0-9-]+(\.[a-z0-9-]+)+$`)

var datePatterns = []struct {
	re       *regexp.Regexp
	withYear bool
}{
	{regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`), true},
	{regexp.MustCompile(`^(\d{1,2})-(\d{1,2})$`), false},
	{regexp.MustCompile(`^(\d{1,2})/(\d{1,2})$`), false},
}

// ValidationError は検証失敗の理由と問題のある値を保持する。
// Messageだけでユーザー向けの文面を組み立てられる。
type ValidationError struct {
	Code  Code
	Value string
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %q", e.Code, e.Value)
}

// Message はユーザー向けの説明文を返す。
func (e *ValidationError) Message() string {
	switch e.Code {
	case CodeWrongFieldCount:
		return fmt.Sprintf("Expected %d comma-separated fields but got %s.", FieldCount, e.Value)
	case CodeInvalidEmail:
		return fmt.Sprintf("The email %q is not a valid email address.", e.Value)
	case CodeEmptyName:
		return "Full name must not be empty."
	case CodeNameTooShort:
		return fmt.Sprintf("Full name %q is too short (at least %d characters).", e.Value, MinNameLength)
	case CodeInvalidBirthDate:
		return fmt.Sprintf("Birth date %q is invalid. Accepted formats: %s.", e.Value, strings.Join(AcceptedDateFormats, ", "))
	case CodeEmptyNickname:
		return "Nickname must not be empty."
	default:
		return fmt.Sprintf("Invalid input: %s", e.Value)
	}
}

// Help はMessageに入力形式と入力例を続けた文面を返す。
func (e *ValidationError) Help() string {
	return e.Message() + "\n\nFormat must be:\n" + Usage + "\nExample:\n" + Example
}

// Validate は生のテキストを検証し、正規化済みのProfileを返す。
// 失敗時は*ValidationErrorを返す。
func Validate(raw string) (model.Profile, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != FieldCount {
		return model.Profile{}, &ValidationError{Code: CodeWrongFieldCount, Value: strconv.Itoa(len(parts))}
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	email, name, birth, nick := parts[0], parts[1], parts[2], parts[3]

	if !emailPattern.MatchString(email) {
		return model.Profile{}, &ValidationError{Code: CodeInvalidEmail, Value: email}
	}

	if name == "" {
		return model.Profile{}, &ValidationError{Code: CodeEmptyName}
	}
	if utf8.RuneCountInString(name) < MinNameLength {
		return model.Profile{}, &ValidationError{Code: CodeNameTooShort, Value: name}
	}

	if !ParseBirthDate(birth) {
		return model.Profile{}, &ValidationError{Code: CodeInvalidBirthDate, Value: birth}
	}

	if nick == "" {
		return model.Profile{}, &ValidationError{Code: CodeEmptyNickname}
	}

	return model.Profile{
		Email:           strings.ToLower(email),
		FullName:        name,
		BirthDate:       birth,
		DisplayNickname: nick,
	}, nil
}

// ParseBirthDate はAcceptedDateFormatsの順に解析を試み、いずれかに一致すればtrueを返す。
// 年を含む形式は実在する日付であることも確認する。
func ParseBirthDate(s string) bool {
	for _, p := range datePatterns {
		m := p.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year := 2000 // 年なし形式は閏年として2/29を許容する
		if p.withYear {
			year, _ = strconv.Atoi(m[3])
		}
		if validDate(year, month, day) {
			return true
		}
	}
	return false
}

func validDate(year, month, day int) bool {
	if month < 1 || month > 12 || day < 1 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Year() == year && int(t.Month()) == month && t.Day() == day
}
