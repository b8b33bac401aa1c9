package update

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

func assetName() string {
	return fmt.Sprintf("%s_%s_%s", BinaryName, runtime.GOOS, runtime.GOARCH)
}

// CheckLatest queries the release feed and returns the newest release
// when it upgrades currentVersion, nil when already up to date. Dev
// builds never see updates.
func CheckLatest(currentVersion string) (*Release, error) {
	if currentVersion == "dev" {
		return nil, nil
	}

	url := fmt.Sprintf("https://api.github.com/repos/%s/releases/latest", Repo)
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("github api: %s", resp.Status)
	}

	var rel struct {
		TagName string `json:"tag_name"`
		Assets  []struct {
			Name               string `json:"name"`
			BrowserDownloadURL string `json:"browser_download_url"`
		} `json:"assets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, err
	}

	want := assetName()
	var assetURL, checksumURL string
	for _, a := range rel.Assets {
		switch a.Name {
		case want:
			assetURL = a.BrowserDownloadURL
		case "checksums.txt":
			checksumURL = a.BrowserDownloadURL
		}
	}
	if assetURL == "" {
		return nil, fmt.Errorf("no asset %q in release %s", want, rel.TagName)
	}

	r := &Release{Version: rel.TagName, AssetURL: assetURL, ChecksumURL: checksumURL}
	if !r.NewerThan(currentVersion) {
		return nil, nil
	}
	return r, nil
}

// checkCache remembers the last release-feed answer so at most one
// request per day leaves the machine, whatever the session cadence.
type checkCache struct {
	dir string
}

const cacheTTL = 24 * time.Hour

type cachedCheck struct {
	Version     string `json:"version"`
	AssetURL    string `json:"asset_url"`
	ChecksumURL string `json:"checksum_url"`
	CheckedAt   int64  `json:"checked_at"`
}

func (c checkCache) path() string {
	return filepath.Join(c.dir, "update_check.json")
}

// load returns the cached answer and whether it is still fresh. A nil
// release with ok=true means the last check saw no update.
func (c checkCache) load() (*Release, bool) {
	data, err := os.ReadFile(c.path())
	if err != nil {
		return nil, false
	}
	var cc cachedCheck
	if json.Unmarshal(data, &cc) != nil {
		return nil, false
	}
	if time.Since(time.Unix(cc.CheckedAt, 0)) > cacheTTL {
		return nil, false
	}
	if cc.Version == "" {
		return nil, true
	}
	return &Release{Version: cc.Version, AssetURL: cc.AssetURL, ChecksumURL: cc.ChecksumURL}, true
}

func (c checkCache) store(rel *Release) {
	cc := cachedCheck{CheckedAt: time.Now().Unix()}
	if rel != nil {
		cc.Version = rel.Version
		cc.AssetURL = rel.AssetURL
		cc.ChecksumURL = rel.ChecksumURL
	}
	data, err := json.Marshal(cc)
	if err != nil {
		return
	}
	_ = os.MkdirAll(c.dir, 0755)
	_ = os.WriteFile(c.path(), data, 0644)
}

// CheckLatestCached is CheckLatest behind the daily cache.
func CheckLatestCached(currentVersion, cacheDir string) (*Release, error) {
	if currentVersion == "dev" {
		return nil, nil
	}
	cache := checkCache{dir: cacheDir}
	if rel, ok := cache.load(); ok {
		return rel, nil
	}
	rel, err := CheckLatest(currentVersion)
	if err != nil {
		return nil, err
	}
	cache.store(rel)
	return rel, nil
}

// CheckInBackground performs one cached check off the calling
// goroutine and invokes notify if an upgrade exists. A session gets
// at most one notification; errors stay silent.
func CheckInBackground(currentVersion, cacheDir string, notify func(Release)) {
	if currentVersion == "dev" {
		return
	}
	go func() {
		rel, err := CheckLatestCached(currentVersion, cacheDir)
		if err == nil && rel != nil {
			notify(*rel)
		}
	}()
}
