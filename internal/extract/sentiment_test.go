package extract

import "testing"

func TestSentiment(t *testing.T) {
	s := NewSentiment()

	t.Run("Negative", func(t *testing.T) {
		score := s.Score("This is a scam, you lied to me and I will file a complaint.")
		if score >= 0 {
			t.Errorf("expected negative score, got %.2f", score)
		}
	})

	t.Run("Positive", func(t *testing.T) {
		score := s.Score("Thank you, that was great and very helpful. I am satisfied.")
		if score <= 0 {
			t.Errorf("expected positive score, got %.2f", score)
		}
	})

	t.Run("Neutral", func(t *testing.T) {
		if score := s.Score("I am calling about my enrollment status."); score != 0 {
			t.Errorf("expected 0 for neutral text, got %.2f", score)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		if score := s.Score(""); score != 0 {
			t.Errorf("expected 0 for empty text, got %.2f", score)
		}
	})

	t.Run("Mixed", func(t *testing.T) {
		// 1 positive, 1 negative -> 0
		if score := s.Score("Thanks, but this is a scam."); score != 0 {
			t.Errorf("expected 0 for balanced polarity, got %.2f", score)
		}
	})

	t.Run("PunctuationStripped", func(t *testing.T) {
		if score := s.Score("Fraud! Fraud! Fraud!"); score != -1 {
			t.Errorf("expected -1 for all-negative text, got %.2f", score)
		}
	})

	t.Run("Bounds", func(t *testing.T) {
		for _, text := range []string{
			"scam fraud lie cheat steal awful terrible worst",
			"thanks great helpful happy satisfied wonderful excellent",
		} {
			score := s.Score(text)
			if score < -1 || score > 1 {
				t.Errorf("score out of [-1,1]: %.2f for %q", score, text)
			}
		}
	})
}
