package quizgen

import (
	"testing"
)

func TestParseQuestionsPlainArray(t *testing.T) {
	text := `[{"question":"Q1","choices":["A: x","B: y"],"correct":"A","explanation":"e"}]`
	raws, err := parseQuestions(text)
	if err != nil {
		t.Fatalf("parseQuestions: %v", err)
	}
	if len(raws) != 1 || raws[0].Question != "Q1" {
		t.Fatalf("raws = %+v", raws)
	}
}

func TestParseQuestionsWithSurroundingProse(t *testing.T) {
	text := "Here are your questions:\n[{\"question\":\"Q1\",\"choices\":[\"a\",\"b\"],\"correct\":\"B\"}]\nEnjoy!"
	raws, err := parseQuestions(text)
	if err != nil {
		t.Fatalf("parseQuestions: %v", err)
	}
	if len(raws) != 1 || raws[0].Correct != "B" {
		t.Fatalf("raws = %+v", raws)
	}
}

func TestParseQuestionsRejectsProseOnly(t *testing.T) {
	if _, err := parseQuestions("I cannot generate questions right now."); err == nil {
		t.Fatal("want error for prose output")
	}
}

func TestAnswerIndex(t *testing.T) {
	choices := []string{"A: Madrid", "B: Berlin", "C: Oslo", "D: Rome"}
	cases := []struct {
		correct string
		want    int
	}{
		{"B", 2},
		{"b", 2},
		{"D: Rome", 4},
		{"Oslo", 3},
		{"B: Berlin", 2},
		{"E", 0},
		{"", 0},
		{"Paris", 0},
	}
	for _, tc := range cases {
		if got := answerIndex(tc.correct, choices); got != tc.want {
			t.Errorf("answerIndex(%q) = %d, want %d", tc.correct, got, tc.want)
		}
	}
}
