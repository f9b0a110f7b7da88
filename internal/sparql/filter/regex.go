package filter

import (
	"regexp"
	"sync"
)

// regexCache memoizes compiled patterns across FILTER evaluations within a
// process, since the same REGEX() call is typically re-evaluated once per
// candidate row.
var regexCache sync.Map // map[string]*regexp.Regexp

func compileRegex(pat, flags string) (*regexp.Regexp, error) {
	key := flags + "\x00" + pat
	if v, ok := regexCache.Load(key); ok {
		return v.(*regexp.Regexp), nil
	}
	goPat := pat
	if flags != "" {
		mode := ""
		for _, f := range flags {
			switch f {
			case 'i':
				mode += "i"
			case 's':
				mode += "s"
			case 'm':
				mode += "m"
			}
		}
		if mode != "" {
			goPat = "(?" + mode + ")" + pat
		}
	}
	re, err := regexp.Compile(goPat)
	if err != nil {
		return nil, err
	}
	regexCache.Store(key, re)
	return re, nil
}
