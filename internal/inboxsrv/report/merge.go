package report

import (
	"sort"
)

// Abridge returns a copy of the report with bulk detail stripped: per-project
// commit fingerprint lists and per-language keyword histograms. Combined
// developer reports are folded from abridged sources so the profile document
// stays small.
func (r *Report) Abridge() *Report {
	out := *r

	out.ProjectsIncluded = make([]ProjectSummary, len(r.ProjectsIncluded))
	for i, p := range r.ProjectsIncluded {
		p.Commits = nil
		out.ProjectsIncluded[i] = p
	}

	out.Tech = make([]Tech, len(r.Tech))
	for i, tech := range r.Tech {
		tech.Keywords = nil
		out.Tech[i] = tech
	}

	if len(r.ContributorEmails) > 0 {
		out.ContributorEmails = append([]string(nil), r.ContributorEmails...)
	}

	return &out
}

// Merge folds `other` into the combined report and returns the result. The
// fold is driven in ascending modification-time order, so `other` is always
// the more recent document: its publicity, contact and timestamp fields win
// whenever they are set. Project summaries accumulate one entry per source;
// tech stats are summed per language. The output is deterministic for a
// fixed input sequence.
//
// A nil `combined` starts a new fold.
func Merge(combined *Report, other *Report) *Report {
	if other == nil {
		return combined
	}
	if combined == nil {
		merged := *other
		merged.ProjectsIncluded = normalizeSummaries(other)
		merged.Tech = mergeTech(nil, other.Tech)
		merged.ContributorEmails = mergeEmails(nil, other.ContributorEmails)
		merged.ProjectID = ""
		merged.GhValidationGistID = nil
		return &merged
	}

	merged := *combined

	// later reports win on publicity and contact fields when they say anything
	if other.Timestamp != "" {
		merged.Timestamp = other.Timestamp
	}
	if other.PublicName != "" {
		merged.PublicName = other.PublicName
	}
	if other.PublicContact != "" {
		merged.PublicContact = other.PublicContact
	}
	if other.PrimaryEmail != "" {
		merged.PrimaryEmail = other.PrimaryEmail
	}
	if other.GithubUserName != "" {
		merged.GithubUserName = other.GithubUserName
	}
	if other.GithubRepoName != "" {
		merged.GithubRepoName = other.GithubRepoName
	}
	if other.OwnerID != "" {
		merged.OwnerID = other.OwnerID
	}

	// the combined report tracks the newest commit across all sources
	if other.LastContributorCommitDateEpoch > merged.LastContributorCommitDateEpoch {
		merged.LastContributorCommitDateEpoch = other.LastContributorCommitDateEpoch
		merged.LastContributorCommitSha1 = other.LastContributorCommitSha1
	}

	merged.ProjectsIncluded = mergeSummaries(combined.ProjectsIncluded, normalizeSummaries(other))
	merged.Tech = mergeTech(combined.Tech, other.Tech)
	merged.ContributorEmails = mergeEmails(combined.ContributorEmails, other.ContributorEmails)

	// the combined report spans sources, it has no single project identity
	// and carries no submission transport metadata
	merged.ProjectID = ""
	merged.GhValidationGistID = nil

	return &merged
}

// normalizeSummaries stamps the source report's identity onto its project
// summaries so the provenance survives the fold.
func normalizeSummaries(r *Report) []ProjectSummary {
	out := make([]ProjectSummary, len(r.ProjectsIncluded))
	for i, p := range r.ProjectsIncluded {
		if r.ProjectID != "" {
			p.ProjectID = r.ProjectID
		}
		if r.GithubUserName != "" {
			p.GithubUserName = r.GithubUserName
		}
		if r.GithubRepoName != "" {
			p.GithubRepoName = r.GithubRepoName
		}
		out[i] = p
	}
	return out
}

// summaryKey identifies a project summary across merges: by project id for
// private submissions, by GitHub coordinates for GitHub-sourced reports, by
// name as a last resort.
func summaryKey(p ProjectSummary) string {
	if p.ProjectID != "" {
		return "id:" + p.ProjectID
	}
	if p.GithubUserName != "" || p.GithubRepoName != "" {
		return "gh:" + p.GithubUserName + "/" + p.GithubRepoName
	}
	return "name:" + p.ProjectName
}

// mergeSummaries appends the newer summaries, replacing any earlier summary
// for the same project in place.
func mergeSummaries(existing, incoming []ProjectSummary) []ProjectSummary {
	out := append([]ProjectSummary(nil), existing...)
	index := make(map[string]int, len(out))
	for i, p := range out {
		index[summaryKey(p)] = i
	}
	for _, p := range incoming {
		key := summaryKey(p)
		if i, ok := index[key]; ok {
			out[i] = p
			continue
		}
		index[key] = len(out)
		out = append(out, p)
	}
	return out
}

// mergeTech sums per-language stats across sources. Output is sorted by
// language so repeated merges of the same inputs are byte-identical.
func mergeTech(existing, incoming []Tech) []Tech {
	byLang := make(map[string]Tech, len(existing)+len(incoming))
	for _, t := range existing {
		t.Keywords = cloneKeywords(t.Keywords)
		byLang[t.Language] = t
	}
	for _, t := range incoming {
		acc, ok := byLang[t.Language]
		if !ok {
			t.Keywords = cloneKeywords(t.Keywords)
			byLang[t.Language] = t
			continue
		}
		acc.Files += t.Files
		acc.CodeLines += t.CodeLines
		if len(t.Keywords) > 0 {
			if acc.Keywords == nil {
				acc.Keywords = make(map[string]int64, len(t.Keywords))
			}
			for k, v := range t.Keywords {
				acc.Keywords[k] += v
			}
		}
		byLang[t.Language] = acc
	}

	if len(byLang) == 0 {
		return nil
	}
	out := make([]Tech, 0, len(byLang))
	for _, t := range byLang {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Language < out[j].Language })
	return out
}

func cloneKeywords(kw map[string]int64) map[string]int64 {
	if kw == nil {
		return nil
	}
	out := make(map[string]int64, len(kw))
	for k, v := range kw {
		out[k] = v
	}
	return out
}

// mergeEmails unions contributor emails. Output is sorted for determinism.
func mergeEmails(existing, incoming []string) []string {
	if len(existing) == 0 && len(incoming) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, e := range existing {
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	for _, e := range incoming {
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}
