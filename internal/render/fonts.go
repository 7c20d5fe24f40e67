// Package render redraws translated text into page regions.
package render

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/text/language"

	"pdf-translator/internal/logger"
)

// FontTable maps a target language code to a font file name.
type FontTable map[string]string

// DefaultFontFile is used for languages missing from the table.
const DefaultFontFile = "arial.ttf"

// DefaultFontTable covers the Latin, Devanagari and simplified Chinese targets.
var DefaultFontTable = FontTable{
	"en": "arial.ttf",
	"fr": "DejaVuSans.ttf",
	"hi": "NotoSansDevanagari-Regular.ttf",
	"zh": "NotoSansSC-Regular.ttf",
}

// FileFor returns the font file for lang, trying the exact code, then its base language.
func (t FontTable) FileFor(lang string) string {
	if f, ok := t[lang]; ok {
		return f
	}
	if tag, err := language.Parse(lang); err == nil {
		base, _ := tag.Base()
		if f, ok := t[base.String()]; ok {
			return f
		}
	}
	return DefaultFontFile
}

var (
	fallbackOnce sync.Once
	fallbackFont *truetype.Font
)

// FallbackFont returns the built-in Go Regular font.
func FallbackFont() *truetype.Font {
	fallbackOnce.Do(func() {
		f, err := truetype.Parse(goregular.TTF)
		if err != nil {
			panic("render: embedded fallback font is invalid: " + err.Error())
		}
		fallbackFont = f
	})
	return fallbackFont
}

// FontLoader resolves and caches parsed fonts per language.
// Missing or unparsable files fall back to FallbackFont.
type FontLoader struct {
	dir   string
	table FontTable

	mu    sync.Mutex
	fonts map[string]*truetype.Font // file name -> font
}

// NewFontLoader creates a loader that looks up relative font files in dir.
// An empty dir resolves files against the working directory.
func NewFontLoader(dir string, table FontTable) *FontLoader {
	if table == nil {
		table = DefaultFontTable
	}
	return &FontLoader{
		dir:   dir,
		table: table,
		fonts: make(map[string]*truetype.Font),
	}
}

// Font returns the font for lang.
func (l *FontLoader) Font(lang string) *truetype.Font {
	file := l.table.FileFor(lang)

	l.mu.Lock()
	defer l.mu.Unlock()

	if f, ok := l.fonts[file]; ok {
		return f
	}

	f, err := l.load(file)
	if err != nil {
		logger.Warn("font unavailable, using built-in fallback",
			logger.String("language", lang),
			logger.String("file", file),
			logger.Err(err))
		f = FallbackFont()
	}
	l.fonts[file] = f
	return f
}

func (l *FontLoader) load(file string) (*truetype.Font, error) {
	path := file
	if !filepath.IsAbs(path) && l.dir != "" {
		path = filepath.Join(l.dir, file)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return truetype.Parse(data)
}

// Face returns a face of the given pixel size for lang. Sizes below 1 are raised to 1.
// Faces are not safe for concurrent use; each caller gets its own.
func (l *FontLoader) Face(lang string, size int) font.Face {
	if size < 1 {
		size = 1
	}
	return truetype.NewFace(l.Font(lang), &truetype.Options{Size: float64(size)})
}
