// Package health scores password strength and the overall health of a set of
// stored credentials.
package health

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Level of a strength report.
type Level string

const (
	None       Level = "None"
	Weak       Level = "Weak"
	Medium     Level = "Medium"
	Strong     Level = "Strong"
	VeryStrong Level = "Very Strong"
)

// Report is the strength of a single password.
type Report struct {
	Score    int      `json:"score"`
	Level    Level    `json:"level"`
	Feedback []string `json:"feedback"`
}

// GuessesPerSecond is the attacker rate assumed by EstimateCrackTime.
const GuessesPerSecond = 1e9

var (
	lowerRe  = regexp.MustCompile(`[a-z]`)
	upperRe  = regexp.MustCompile(`[A-Z]`)
	digitRe  = regexp.MustCompile(`[0-9]`)
	symbolRe = regexp.MustCompile(`[^a-zA-Z0-9]`)

	weakPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^[a-z]+$`),
		regexp.MustCompile(`^[A-Z]+$`),
		regexp.MustCompile(`^[0-9]+$`),
		regexp.MustCompile(`^(012|123|234|345|456|567|678|789|890)+$`),
		regexp.MustCompile(`(?i)^(qwerty|asdfgh|zxcvbn)+$`),
	}
)

var commonPasswords = map[string]struct{}{
	"password": {}, "password123": {}, "123456": {}, "12345678": {},
	"qwerty": {}, "abc123": {}, "monkey": {}, "1234567890": {},
	"letmein": {}, "trustno1": {}, "dragon": {}, "baseball": {},
	"iloveyou": {}, "master": {}, "sunshine": {}, "ashley": {},
}

// knownLeaks is a tiny offline stand-in for a breach corpus.
var knownLeaks = []string{"password", "123456", "qwerty"}

// Score rates a password. An empty password has level None.
func Score(password string) Report {
	if password == "" {
		return Report{Score: 0, Level: None, Feedback: []string{}}
	}

	score := 0
	feedback := []string{}

	switch n := utf8.RuneCountInString(password); {
	case n >= 12:
		score += 2
	case n >= 8:
		score++
	default:
		feedback = append(feedback, "Too short (min 8 characters)")
	}

	classes := []struct {
		re  *regexp.Regexp
		msg string
	}{
		{lowerRe, "Add lowercase letters"},
		{upperRe, "Add uppercase letters"},
		{digitRe, "Add numbers"},
		{symbolRe, "Add special characters"},
	}
	for _, c := range classes {
		if c.re.MatchString(password) {
			score++
		} else {
			feedback = append(feedback, c.msg)
		}
	}

	if hasWeakPattern(password) {
		score -= 2
		feedback = append(feedback, "Avoid simple patterns")
	}

	if IsCommon(password) {
		score = 0
		feedback = append(feedback, "This is a commonly used password!")
	}

	return Report{Score: score, Level: levelOf(score), Feedback: feedback}
}

func levelOf(score int) Level {
	switch {
	case score >= 6:
		return VeryStrong
	case score >= 5:
		return Strong
	case score >= 3:
		return Medium
	}
	return Weak
}

func hasWeakPattern(password string) bool {
	if repeatedChar(password) {
		return true
	}
	for _, re := range weakPatterns {
		if re.MatchString(password) {
			return true
		}
	}
	return false
}

// repeatedChar reports whether the password is one character repeated at
// least twice. RE2 has no backreferences, so this is checked by hand.
func repeatedChar(password string) bool {
	first, size := utf8.DecodeRuneInString(password)
	if size == len(password) || first == '\n' {
		return false
	}
	for _, r := range password {
		if r != first {
			return false
		}
	}
	return true
}

// IsCommon reports whether the password is on the common-password list,
// ignoring case.
func IsCommon(password string) bool {
	_, ok := commonPasswords[strings.ToLower(password)]
	return ok
}

// IsBreached is a basic offline breach check.
func IsBreached(password string) bool {
	p := strings.ToLower(password)
	for _, leak := range knownLeaks {
		if p == leak {
			return true
		}
	}
	return false
}

// Entropy is length × log2(charset size), where the charset sums 26, 26, 10
// and 32 for each character class present.
func Entropy(password string) float64 {
	if password == "" {
		return 0
	}
	charset := 0
	if lowerRe.MatchString(password) {
		charset += 26
	}
	if upperRe.MatchString(password) {
		charset += 26
	}
	if digitRe.MatchString(password) {
		charset += 10
	}
	if symbolRe.MatchString(password) {
		charset += 32
	}
	return float64(utf8.RuneCountInString(password)) * math.Log2(float64(charset))
}

// EstimateCrackTime maps 2^entropy guesses at GuessesPerSecond to a
// human-readable bucket.
func EstimateCrackTime(password string) string {
	seconds := math.Pow(2, Entropy(password)) / GuessesPerSecond
	switch {
	case seconds < 60:
		return "Instantly"
	case seconds < 3600:
		return fmt.Sprintf("%.0f minutes", math.Round(seconds/60))
	case seconds < 86400:
		return fmt.Sprintf("%.0f hours", math.Round(seconds/3600))
	case seconds < 31536000:
		return fmt.Sprintf("%.0f days", math.Round(seconds/86400))
	case seconds < 31536000000:
		return fmt.Sprintf("%.0f years", math.Round(seconds/31536000))
	}
	return "Centuries"
}

// Check is the full assessment of one password.
type Check struct {
	Report
	Entropy   float64 `json:"entropy"`
	CrackTime string  `json:"crack_time"`
	Breached  bool    `json:"breached"`
}

// Inspect is Score plus entropy, crack time and the breach check.
func Inspect(password string) Check {
	return Check{
		Report:    Score(password),
		Entropy:   math.Round(Entropy(password)*100) / 100,
		CrackTime: EstimateCrackTime(password),
		Breached:  IsBreached(password),
	}
}
