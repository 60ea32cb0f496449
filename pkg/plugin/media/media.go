// Package media scans image, audio, and video collections. Media type is
// classified by extension; duration, dimensions, bitrate, and codec are
// stub values, since EXIF/ID3 extraction is out of scope for the core.
package media

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/collectivehq/collectivist/pkg/collection"
	"github.com/collectivehq/collectivist/pkg/plugin"
)

// mediaTypes maps extensions to their coarse media type.
var mediaTypes = map[string]string{
	".jpg": "image", ".jpeg": "image", ".png": "image", ".gif": "image",
	".bmp": "image", ".tiff": "image", ".webp": "image",
	".mp3": "audio", ".wav": "audio", ".flac": "audio", ".aac": "audio",
	".ogg": "audio", ".m4a": "audio",
	".mp4": "video", ".avi": "video", ".mkv": "video", ".mov": "video",
	".wmv": "video", ".flv": "video", ".webm": "video",
}

var skipDirs = map[string]bool{
	".git": true, ".obsidian": true, "__pycache__": true,
	"node_modules": true, ".collection": true,
}

// DetectThreshold is the minimum media file count for auto-detection.
const DetectThreshold = 10

// Scanner indexes media collections.
type Scanner struct{}

var _ plugin.Scanner = (*Scanner)(nil)

// New returns the media scanner.
func New() *Scanner { return &Scanner{} }

func (s *Scanner) Name() string { return "media" }

func (s *Scanner) SupportedTypes() []string { return []string{"file"} }

func (s *Scanner) DefaultCategories() []string {
	return []string{
		"photography",
		"music_audio",
		"videos_films",
		"art_design",
		"screenshots",
		"podcasts",
		"presentations",
		"utilities_misc",
	}
}

func (s *Scanner) Detect(root string) bool {
	count := 0
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := mediaTypes[strings.ToLower(filepath.Ext(d.Name()))]; ok {
			count++
			if count >= DetectThreshold {
				return filepath.SkipAll
			}
		}
		return nil
	})
	return count >= DetectThreshold
}

func (s *Scanner) Scan(root string, cfg plugin.ScanConfig) ([]collection.Item, error) {
	var items []collection.Item
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] || cfg.Excluded(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		mediaType, ok := mediaTypes[ext]
		if !ok || cfg.Excluded(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}

		it := plugin.NewItem(path, info)
		it.ShortName = strings.TrimSuffix(d.Name(), ext)
		it.SetMeta("file_extension", ext)
		it.SetMeta("media_type", mediaType)
		it.SetMeta("duration", 0)
		it.SetMeta("dimensions", "")
		it.SetMeta("bitrate", 0)
		it.SetMeta("codec", "")
		cfg.Apply(&it)
		items = append(items, it)
		return nil
	})
	if err != nil {
		return nil, &plugin.ScannerError{Scanner: s.Name(), Err: err}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Modified > items[j].Modified
	})
	return items, nil
}

func (s *Scanner) DescriptionPromptTemplate() string {
	return `You are a technical documentation assistant. Generate a one-sentence description and category for a media file based on its metadata and filename.

Available categories (choose ONE):
- photography: Personal photos, professional photography, and image collections
- music_audio: Music tracks, audio recordings, and sound files
- videos_films: Video content, films, movies, and video recordings
- art_design: Digital art, design files, graphics, and creative visuals
- screenshots: Screenshots, screen recordings, and interface captures
- podcasts: Podcast episodes, audio shows, and spoken word content
- presentations: Video presentations, tutorials, and educational content
- utilities_misc: Stock media, templates, and miscellaneous media files

Media Metadata:
File Type: {file_extension}
Media Type: {media_type}
Duration: {duration} seconds
Dimensions: {dimensions}
Bitrate: {bitrate}
Codec: {codec}
Filename: {filename}

Generate a JSON response with:
1. "description": A single-sentence description (max 150 characters) based on the filename and metadata. Be concise and descriptive.
2. "category": ONE category from the list above that best matches this media file.`
}

// ContentForDescription composes a textual summary from the filename and
// metadata; media content itself is binary and never read.
func (s *Scanner) ContentForDescription(item *collection.Item) string {
	parts := []string{"Media file: " + item.ShortName}
	if mt := item.MetaString("media_type"); mt != "" {
		parts = append(parts, "Type: "+mt)
	}
	if ext := item.MetaString("file_extension"); ext != "" {
		parts = append(parts, "Format: "+ext)
	}
	if dims := item.MetaString("dimensions"); dims != "" {
		parts = append(parts, "Dimensions: "+dims)
	}
	return strings.Join(parts, "\n")
}
