package langpair

// Fallback finds the closest installed key to req by dropping trailing
// variant segments. Candidates are tried by ascending total segments dropped,
// and within a tie by ascending target segments dropped, so target-side
// specificity outlives source-side specificity. The exact key is tried first.
func Fallback(req Key, installed Set) (Key, bool) {
	m, n := len(req.Src.Variants), len(req.Trg.Variants)
	for sum := 0; sum <= m+n; sum++ {
		for dropTrg := 0; dropTrg <= n && dropTrg <= sum; dropTrg++ {
			dropSrc := sum - dropTrg
			if dropSrc > m {
				continue
			}
			cand := Key{
				Src: req.Src.Truncate(m - dropSrc),
				Trg: req.Trg.Truncate(n - dropTrg),
			}
			if installed.Has(cand) {
				return cand, true
			}
		}
	}
	return Key{}, false
}
