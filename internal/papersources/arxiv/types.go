package arxiv

import (
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

// nsArXiv is the prefix gofeed uses to key arxiv: Atom extensions.
const nsArXiv = "arxiv"

// itemDOI returns the arxiv:doi value of an entry.
func itemDOI(item *gofeed.Item) string {
	return extensionValue(item.Extensions, nsArXiv, "doi")
}

func extensionValue(exts ext.Extensions, ns, name string) string {
	if exts == nil {
		return ""
	}
	values := exts[ns][name]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}
