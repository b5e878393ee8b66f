package domain

import (
	"strings"
	"testing"
)

func FuzzTokenizeQuery(f *testing.F) {
	f.Add("papers about GANs for image generation")
	f.Add("Transformers, transformers; TRANSFORMERS!")
	f.Add("state-of-the-art 'attention' -- is all you need")
	f.Add("生成对抗网络 图像生成")
	f.Add("\x00\xff\xfe")
	f.Add("")

	f.Fuzz(func(t *testing.T, text string) {
		seen := make(map[string]bool)
		for _, tok := range TokenizeQuery(text) {
			if tok == "" {
				t.Fatalf("empty token from %q", text)
			}
			if strings.ContainsAny(tok, " \t\n") {
				t.Errorf("token %q contains whitespace", tok)
			}
			key := strings.ToLower(tok)
			if seen[key] {
				t.Errorf("duplicate token %q from %q", tok, text)
			}
			seen[key] = true
		}
	})
}
