package pdfresolve

import (
	"strings"

	"github.com/helixir/paper-search-service/internal/domain"
)

// Rule names the resolution step that produced a link.
type Rule string

const (
	RuleNone       Rule = "none"
	RuleExisting   Rule = "existing"
	RuleOpenAccess Rule = "open_access"
	RuleArXiv      Rule = "arxiv"
	RulePMC        Rule = "pmc"
	RulePubMed     Rule = "pubmed"
	RuleBioRxiv    Rule = "doi_biorxiv"
	RuleNature     Rule = "doi_nature"
	RuleScience    Rule = "doi_science"
	RuleIEEE       Rule = "doi_ieee"
	RuleACM        Rule = "doi_acm"
	RuleArXivDOI   Rule = "doi_arxiv"
	RuleDOI        Rule = "doi"
)

const (
	arxivPDFTemplate   = "https://arxiv.org/pdf/%s.pdf"
	pmcPDFTemplate     = "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC%s/pdf/"
	pubmedPageURL      = "https://pubmed.ncbi.nlm.nih.gov/"
	doiResolverURL     = "https://doi.org/"
	arxivDOIRegistrant = "10.48550"
)

// publisherRule maps a DOI registrant to a publisher PDF link.
type publisherRule struct {
	registrant string
	rule       Rule
	build      func(doi string) string
}

// publishers is the static DOI table, checked in order.
var publishers = []publisherRule{
	{"10.1101", RuleBioRxiv, func(doi string) string {
		return "https://www.biorxiv.org/content/" + doi + "v1.full.pdf"
	}},
	{"10.1038", RuleNature, func(doi string) string {
		return "https://www.nature.com/articles/" + doiSuffix(doi) + ".pdf"
	}},
	{"10.1126", RuleScience, func(doi string) string {
		return "https://science.sciencemag.org/content/" + doiLastSegment(doi) + ".full.pdf"
	}},
	{"10.1109", RuleIEEE, func(doi string) string {
		return "https://ieeexplore.ieee.org/stamp/stamp.jsp?arnumber=" + doiLastSegment(doi)
	}},
	{"10.1145", RuleACM, func(doi string) string {
		return "https://dl.acm.org/doi/pdf/" + doi
	}},
}

// Resolver fills PaperRecord.ResolvedPDFURL. It performs no I/O and holds no
// mutable state, so one Resolver can serve concurrent callers.
type Resolver struct {
	enhance bool
	trust   *TrustPolicy
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTrust restricts resolution to links the policy trusts. Candidates are
// tried in chain order and the first trusted one wins; a record with no
// trusted candidate resolves to no link.
func WithTrust(policy *TrustPolicy) Option {
	return func(r *Resolver) {
		r.trust = policy
	}
}

// New creates a Resolver. With enableEnhancement false only the
// source-declared open-access link is used.
func New(enableEnhancement bool, opts ...Option) *Resolver {
	r := &Resolver{enhance: enableEnhancement}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns a copy of rec with ResolvedPDFURL set by the first matching
// rule. A record that already carries a resolved link is returned unchanged.
func (r *Resolver) Resolve(rec domain.PaperRecord) domain.PaperRecord {
	out, _ := r.ResolveWithRule(rec)
	return out
}

// ResolveWithRule is Resolve that also reports which rule produced the link.
// RuleNone means no rule applied and ResolvedPDFURL is empty.
func (r *Resolver) ResolveWithRule(rec domain.PaperRecord) (domain.PaperRecord, Rule) {
	out := rec.Clone()
	if out.ResolvedPDFURL != "" && r.trusted(out.ResolvedPDFURL) {
		return out, RuleExisting
	}

	out.ResolvedPDFURL = ""
	for _, c := range candidates(rec, r.enhance) {
		if r.trusted(c.link) {
			out.ResolvedPDFURL = c.link
			return out, c.rule
		}
	}
	return out, RuleNone
}

func (r *Resolver) trusted(link string) bool {
	return r.trust == nil || r.trust.IsTrusted(link)
}

// candidate is one link the chain can produce for a record.
type candidate struct {
	link string
	rule Rule
}

// ResolveURL runs the fallback chain and returns the link and the rule that
// produced it. Order: open-access link, arXiv, PMC (then PubMed landing page),
// DOI publisher table, generic DOI resolver.
func ResolveURL(rec domain.PaperRecord, enhance bool) (string, Rule) {
	if cs := candidates(rec, enhance); len(cs) > 0 {
		return cs[0].link, cs[0].rule
	}
	return "", RuleNone
}

// candidates lists every link the chain yields for rec, in chain order.
func candidates(rec domain.PaperRecord, enhance bool) []candidate {
	var out []candidate
	if oa := strings.TrimSpace(rec.OpenAccessPDFURL); oa != "" {
		out = append(out, candidate{oa, RuleOpenAccess})
	}
	if !enhance {
		return out
	}

	ids := ExtractIdentifiers(rec)

	if ids.ArXivID != "" {
		out = append(out, candidate{arxivPDFURL(ids.ArXivID), RuleArXiv})
	}
	if ids.PMCID != "" {
		out = append(out, candidate{strings.Replace(pmcPDFTemplate, "%s", ids.PMCID, 1), RulePMC})
	}
	if ids.PubMedID != "" {
		out = append(out, candidate{pubmedPageURL + ids.PubMedID + "/", RulePubMed})
	}
	if ids.DOI != "" {
		link, rule := resolveDOI(ids.DOI)
		out = append(out, candidate{link, rule})
		if rule != RuleDOI {
			out = append(out, candidate{doiResolverURL + ids.DOI, RuleDOI})
		}
	}
	return out
}

func resolveDOI(doi string) (string, Rule) {
	registrant := doiRegistrant(doi)

	if registrant == arxivDOIRegistrant {
		id := doiLastSegment(doi)
		if len(id) > 6 && strings.EqualFold(id[:6], "arxiv.") {
			id = id[6:]
		}
		if id = NormalizeArXivID(id); id != "" {
			return arxivPDFURL(id), RuleArXivDOI
		}
	}

	for _, p := range publishers {
		if registrant == p.registrant {
			return p.build(doi), p.rule
		}
	}

	return doiResolverURL + doi, RuleDOI
}

func arxivPDFURL(id string) string {
	return strings.Replace(arxivPDFTemplate, "%s", id, 1)
}
