package telegram

import (
	"cmp"
	"slices"
	"strings"
	"unicode/utf16"

	"github.com/gotd/td/tg"
)

// span wraps a UTF-16 range of the message text in markdown delimiters.
type span struct {
	start  int
	end    int
	prefix string
	suffix string
}

// EntitiesToMarkdown renders Telegram formatting entities as markdown.
// Entity offsets count UTF-16 code units, so the text is walked in that
// encoding.
func EntitiesToMarkdown(text string, entities []tg.MessageEntityClass) string {
	if len(entities) == 0 {
		return text
	}

	units := utf16.Encode([]rune(text))
	spans := make([]span, 0, len(entities))
	for _, e := range entities {
		s, ok := toSpan(units, e)
		if !ok {
			continue
		}
		spans = append(spans, s)
	}
	if len(spans) == 0 {
		return text
	}

	// Outer spans open first and close last.
	slices.SortStableFunc(spans, func(a, b span) int {
		if c := cmp.Compare(a.start, b.start); c != 0 {
			return c
		}
		return cmp.Compare(b.end, a.end)
	})

	type mark struct {
		pos     int
		text    string
		closing bool
		order   int
	}
	marks := make([]mark, 0, 2*len(spans))
	for i, s := range spans {
		marks = append(marks,
			mark{pos: s.start, text: s.prefix, order: i},
			mark{pos: s.end, text: s.suffix, closing: true, order: i},
		)
	}
	slices.SortStableFunc(marks, func(a, b mark) int {
		if c := cmp.Compare(a.pos, b.pos); c != 0 {
			return c
		}
		switch {
		case a.closing && !b.closing:
			return -1
		case !a.closing && b.closing:
			return 1
		case a.closing:
			return cmp.Compare(b.order, a.order)
		default:
			return cmp.Compare(a.order, b.order)
		}
	})

	var b strings.Builder
	next := 0
	for i := 0; i <= len(units); i++ {
		for next < len(marks) && marks[next].pos == i {
			b.WriteString(marks[next].text)
			next++
		}
		if i == len(units) {
			break
		}
		u := rune(units[i])
		if !utf16.IsSurrogate(u) {
			b.WriteRune(u)
			continue
		}
		if i+1 < len(units) {
			b.WriteRune(utf16.DecodeRune(u, rune(units[i+1])))
			i++
		}
	}
	return b.String()
}

func toSpan(units []uint16, entity tg.MessageEntityClass) (span, bool) {
	start := entity.GetOffset()
	end := min(start+entity.GetLength(), len(units))
	wrap := func(prefix, suffix string) (span, bool) {
		return span{start: start, end: end, prefix: prefix, suffix: suffix}, true
	}

	switch e := entity.(type) {
	case *tg.MessageEntityBold, *tg.MessageEntityMention, *tg.MessageEntityMentionName, *tg.MessageEntityHashtag:
		return wrap("**", "**")
	case *tg.MessageEntityItalic, *tg.MessageEntityUnderline:
		return wrap("*", "*")
	case *tg.MessageEntityCode, *tg.MessageEntityBotCommand:
		return wrap("`", "`")
	case *tg.MessageEntityPre:
		return wrap("```"+e.Language+"\n", "\n```")
	case *tg.MessageEntityStrike:
		return wrap("~~", "~~")
	case *tg.MessageEntitySpoiler:
		return wrap("||", "||")
	case *tg.MessageEntityBlockquote:
		return wrap("> ", "")
	case *tg.MessageEntityTextURL:
		return wrap("[", "]("+e.URL+")")
	case *tg.MessageEntityURL:
		return wrap("[", "]("+utf16Slice(units, start, end)+")")
	case *tg.MessageEntityEmail:
		return wrap("[", "](mailto:"+utf16Slice(units, start, end)+")")
	default:
		return span{}, false
	}
}

func utf16Slice(units []uint16, start, end int) string {
	if start >= len(units) || start >= end {
		return ""
	}
	return string(utf16.Decode(units[start:end]))
}
