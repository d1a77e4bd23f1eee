package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractProfileLinks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		fragment string
		want     []string
	}{
		{
			name:     "cards in document order",
			fragment: rosterFragment("/agents/b", "/agents/a", "https://other.example.com/agents/c"),
			want:     []string{"/agents/b", "/agents/a", "https://other.example.com/agents/c"},
		},
		{
			name:     "duplicates kept",
			fragment: rosterFragment("/agents/a", "/agents/a"),
			want:     []string{"/agents/a", "/agents/a"},
		},
		{
			name:     "anchor outside article ignored",
			fragment: `<a class="cms-int-roster-card-image-container site-roster-card-image-link" href="/stray"></a>`,
			want:     []string{},
		},
		{
			name:     "anchor missing one class ignored",
			fragment: `<article><a class="site-roster-card-image-link" href="/half"></a></article>`,
			want:     []string{},
		},
		{
			name:     "anchor without href ignored",
			fragment: `<article><a class="cms-int-roster-card-image-container site-roster-card-image-link"></a></article>`,
			want:     []string{},
		},
		{
			name:     "no cards",
			fragment: `<p>No agents found</p>`,
			want:     []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ExtractProfileLinks(tt.fragment)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	base := "https://www.bhhsamb.com/CMS/CmsRoster/RosterSearchResults?pageNumber=2"

	got, err := ResolveURL(base, " /bio/jane-doe#contact ")
	require.NoError(t, err)
	assert.Equal(t, "https://www.bhhsamb.com/bio/jane-doe", got)

	got, err = ResolveURL(base, "https://cdn.example.com/bio/x")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/bio/x", got)

	_, err = ResolveURL(base, "http://[::1")
	require.Error(t, err)
}
