package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyPage(t *testing.T) {
	tests := []struct {
		name  string
		url   string
		title string
		html  string
		want  PageClass
	}{
		{
			name:  "normal profile page",
			url:   "https://www.airbnb.com/users/show/12345",
			title: "Hafsa - Airbnb",
			html:  `<html><body><h1>Hi, I'm Hafsa</h1></body></html>`,
			want:  PageNormal,
		},
		{
			name:  "challenge banner is a soft block",
			url:   "https://www.airbnb.com/users/show/12345",
			title: "Airbnb",
			html:  `<div class="challenge">Please verify you are a human</div>`,
			want:  PageSoftBlock,
		},
		{
			name:  "rate limit text is a soft block",
			url:   "https://www.airbnb.com/rooms/99",
			title: "Too Many Requests",
			html:  `<html></html>`,
			want:  PageSoftBlock,
		},
		{
			name:  "airlock redirect is a soft block",
			url:   "https://www.airbnb.com/airlock?al_id=5",
			title: "Airbnb",
			html:  `<html></html>`,
			want:  PageSoftBlock,
		},
		{
			name:  "access denied is a hard block",
			url:   "https://www.airbnb.com/rooms/99",
			title: "Access Denied",
			html:  `<h1>Access to this page has been denied</h1>`,
			want:  PageHardBlock,
		},
		{
			name:  "hard block wins over soft markers",
			url:   "https://www.airbnb.com/denied",
			title: "Access Denied",
			html:  `<div>too many requests</div><h1>your IP has been blocked</h1>`,
			want:  PageHardBlock,
		},
		{
			name:  "denied redirect without markers is a hard block",
			url:   "https://www.airbnb.com/denied?ref=rooms",
			title: "Airbnb",
			html:  `<html></html>`,
			want:  PageHardBlock,
		},
		{
			name:  "perimeter captcha container",
			url:   "https://www.airbnb.com/rooms/42",
			title: "Airbnb",
			html:  `<div id="px-captcha"></div>`,
			want:  PageSoftBlock,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyPage(tt.url, tt.title, tt.html)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPageClassString(t *testing.T) {
	assert.Equal(t, "normal", PageNormal.String())
	assert.Equal(t, "soft_block", PageSoftBlock.String())
	assert.Equal(t, "hard_block", PageHardBlock.String())
}
