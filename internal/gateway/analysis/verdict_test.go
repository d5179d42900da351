package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTriage(t *testing.T) {
	t.Run("parses a bare JSON object", func(t *testing.T) {
		v, err := ParseTriage(`{"escalate":false,"escalateReason":"","initialConfidence":92,"claimCategories":["health"],"quickSummary":"s"}`)
		require.NoError(t, err)
		assert.False(t, v.Escalate)
		assert.Equal(t, 92, v.InitialConfidence)
		assert.Equal(t, []string{"health"}, v.ClaimCategories)
	})

	t.Run("strips markdown fences", func(t *testing.T) {
		v, err := ParseTriage("```json\n{\"escalate\":true,\"escalateReason\":\"conflicting sources\",\"initialConfidence\":40}\n```")
		require.NoError(t, err)
		assert.True(t, v.Escalate)
		assert.Equal(t, "conflicting sources", v.EscalateReason)
	})

	t.Run("strips surrounding prose", func(t *testing.T) {
		v, err := ParseTriage(`Here is my assessment: {"escalate":false,"initialConfidence":90} Hope that helps!`)
		require.NoError(t, err)
		assert.Equal(t, 90, v.InitialConfidence)
	})

	t.Run("tolerates trailing commas", func(t *testing.T) {
		_, err := ParseTriage(`{"escalate":false,"initialConfidence":90,}`)
		require.NoError(t, err)
	})

	t.Run("rejects missing escalate", func(t *testing.T) {
		_, err := ParseTriage(`{"initialConfidence":90}`)
		assert.ErrorIs(t, err, ErrMalformedVerdict)
	})

	t.Run("rejects missing confidence", func(t *testing.T) {
		_, err := ParseTriage(`{"escalate":false}`)
		assert.ErrorIs(t, err, ErrMalformedVerdict)
	})

	t.Run("rejects out-of-range confidence", func(t *testing.T) {
		_, err := ParseTriage(`{"escalate":false,"initialConfidence":120}`)
		assert.ErrorIs(t, err, ErrMalformedVerdict)
	})

	t.Run("rejects non-JSON text", func(t *testing.T) {
		_, err := ParseTriage("I could not reach a conclusion.")
		assert.ErrorIs(t, err, ErrMalformedVerdict)
	})
}

func TestParseVerdict(t *testing.T) {
	full := `{"verdict":"MOSTLY FALSE","confidence":88,"summary":"The claim misrepresents the study.","claims":[{"claim":"c1","status":"FALSE","explanation":"e1"}],"context":"ctx","redFlags":["Loaded language"],"citations":[{"title":"Snopes","url":"https://snopes.com/x","cited_text":"quote"}],"factCheckMatch":"Snopes","bottomLine":"Not supported by evidence."}`

	t.Run("parses a full verdict", func(t *testing.T) {
		v, err := ParseVerdict(full)
		require.NoError(t, err)
		assert.Equal(t, "MOSTLY FALSE", v.Verdict)
		assert.Equal(t, 88, v.Confidence)
		assert.Len(t, v.Claims, 1)
		assert.Equal(t, "Snopes", v.FactCheckMatch)
	})

	t.Run("parses the quick-check subset", func(t *testing.T) {
		v, err := ParseVerdict(`{"verdict":"UNVERIFIABLE","confidence":55,"summary":"s","bottomLine":"b","citations":[]}`)
		require.NoError(t, err)
		assert.Empty(t, v.Claims)
	})

	t.Run("rejects an unknown verdict value", func(t *testing.T) {
		_, err := ParseVerdict(`{"verdict":"PROBABLY","confidence":50,"summary":"s","bottomLine":"b"}`)
		assert.ErrorIs(t, err, ErrMalformedVerdict)
	})

	t.Run("rejects a missing summary", func(t *testing.T) {
		_, err := ParseVerdict(`{"verdict":"FACT","confidence":95,"bottomLine":"b"}`)
		assert.ErrorIs(t, err, ErrMalformedVerdict)
	})

	t.Run("rejects a missing bottom line", func(t *testing.T) {
		_, err := ParseVerdict(`{"verdict":"FACT","confidence":95,"summary":"s"}`)
		assert.ErrorIs(t, err, ErrMalformedVerdict)
	})

	t.Run("rejects empty output", func(t *testing.T) {
		_, err := ParseVerdict("")
		assert.ErrorIs(t, err, ErrMalformedVerdict)
	})
}
