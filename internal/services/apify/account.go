package apify

import (
	"encoding/json"
	"fmt"
	"strings"

	"dossier/internal/textutil"
)

const (
	maxPhotos      = 10
	maxCaptionRune = 200
)

// Photo is one image published on the account.
type Photo struct {
	URL     string
	Caption string
}

// Account is the platform-neutral view of a scraped profile.
type Account struct {
	Platform    string
	Handle      string
	URL         string
	DisplayName string
	Bio         string
	Followers   int64
	Verified    bool
	ProfilePic  string
	Headline    string
	Location    string
	Company     string
	Education   []string
	Photos      []Photo
}

type instagramProfile struct {
	Username       string `json:"username"`
	FullName       string `json:"fullName"`
	Biography      string `json:"biography"`
	FollowersCount int64  `json:"followersCount"`
	Verified       bool   `json:"verified"`
	ProfilePicURL  string `json:"profilePicUrl"`
	ProfilePicHD   string `json:"profilePicUrlHD"`
	LatestPosts    []struct {
		DisplayURL string `json:"displayUrl"`
		Caption    string `json:"caption"`
	} `json:"latestPosts"`
}

type tweet struct {
	FullText string `json:"full_text"`
	User     struct {
		ScreenName      string `json:"screen_name"`
		Name            string `json:"name"`
		Description     string `json:"description"`
		FollowersCount  int64  `json:"followers_count"`
		Verified        bool   `json:"verified"`
		ProfileImageURL string `json:"profile_image_url_https"`
	} `json:"user"`
	Entities struct {
		Media []struct {
			Type          string `json:"type"`
			MediaURLHTTPS string `json:"media_url_https"`
		} `json:"media"`
	} `json:"entities"`
}

type linkedinProfile struct {
	PublicIdentifier string `json:"publicIdentifier"`
	URL              string `json:"url"`
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	Headline         string `json:"headline"`
	Location         string `json:"location"`
	ProfilePicture   string `json:"profilePicture"`
	Education        []struct {
		SchoolName string `json:"schoolName"`
	} `json:"education"`
	Experience []struct {
		CompanyName string `json:"companyName"`
	} `json:"experience"`
}

// genericProfile covers the tiktok, facebook, and youtube actors, which share
// most field names.
type genericProfile struct {
	Username       string `json:"username"`
	UniqueID       string `json:"uniqueId"`
	Name           string `json:"name"`
	Nickname       string `json:"nickname"`
	Title          string `json:"title"`
	URL            string `json:"url"`
	ProfileURL     string `json:"profileUrl"`
	Bio            string `json:"bio"`
	Signature      string `json:"signature"`
	Description    string `json:"description"`
	Followers      int64  `json:"followers"`
	FollowerCount  int64  `json:"followerCount"`
	Subscribers    int64  `json:"subscriberCount"`
	Verified       bool   `json:"verified"`
	Avatar         string `json:"avatar"`
	ProfilePicture string `json:"profilePicture"`
	ProfilePhoto   string `json:"profilePhoto"`
	AuthorMeta     *struct {
		Name       string `json:"name"`
		NickName   string `json:"nickName"`
		Signature  string `json:"signature"`
		Fans       int64  `json:"fans"`
		Verified   bool   `json:"verified"`
		Avatar     string `json:"avatar"`
		ProfileURL string `json:"profileUrl"`
	} `json:"authorMeta"`
}

func parseAccount(platform string, items []json.RawMessage) (*Account, error) {
	switch platform {
	case "instagram":
		return parseInstagram(items[0])
	case "twitter":
		return parseTwitter(items)
	case "linkedin":
		return parseLinkedIn(items[0])
	default:
		return parseGeneric(platform, items[0])
	}
}

func parseInstagram(raw json.RawMessage) (*Account, error) {
	var p instagramProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode instagram profile: %w", err)
	}
	account := &Account{
		Platform:    "instagram",
		Handle:      p.Username,
		DisplayName: p.FullName,
		Bio:         p.Biography,
		Followers:   p.FollowersCount,
		Verified:    p.Verified,
		ProfilePic:  textutil.FirstNonEmpty(p.ProfilePicHD, p.ProfilePicURL),
	}
	if p.Username != "" {
		account.URL = "https://instagram.com/" + p.Username
	}
	for _, post := range p.LatestPosts {
		if len(account.Photos) == maxPhotos {
			break
		}
		if strings.TrimSpace(post.DisplayURL) == "" {
			continue
		}
		account.Photos = append(account.Photos, Photo{URL: post.DisplayURL, Caption: textutil.Truncate(post.Caption, maxCaptionRune)})
	}
	return account, nil
}

func parseTwitter(items []json.RawMessage) (*Account, error) {
	tweets := make([]tweet, 0, len(items))
	for _, raw := range items {
		var tw tweet
		if err := json.Unmarshal(raw, &tw); err != nil {
			return nil, fmt.Errorf("decode tweet: %w", err)
		}
		tweets = append(tweets, tw)
	}
	user := tweets[0].User
	account := &Account{
		Platform:    "twitter",
		Handle:      user.ScreenName,
		DisplayName: user.Name,
		Bio:         user.Description,
		Followers:   user.FollowersCount,
		Verified:    user.Verified,
		ProfilePic:  user.ProfileImageURL,
	}
	if user.ScreenName != "" {
		account.URL = "https://twitter.com/" + user.ScreenName
	}
	limit := min(len(tweets), maxPhotos)
	for _, tw := range tweets[:limit] {
		for _, m := range tw.Entities.Media {
			if m.Type != "photo" || strings.TrimSpace(m.MediaURLHTTPS) == "" {
				continue
			}
			account.Photos = append(account.Photos, Photo{URL: m.MediaURLHTTPS, Caption: textutil.Truncate(tw.FullText, maxCaptionRune)})
		}
	}
	return account, nil
}

func parseLinkedIn(raw json.RawMessage) (*Account, error) {
	var p linkedinProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode linkedin profile: %w", err)
	}
	account := &Account{
		Platform:    "linkedin",
		Handle:      p.PublicIdentifier,
		URL:         p.URL,
		DisplayName: strings.TrimSpace(p.FirstName + " " + p.LastName),
		Headline:    p.Headline,
		Location:    p.Location,
		ProfilePic:  p.ProfilePicture,
	}
	for _, edu := range p.Education {
		if name := strings.TrimSpace(edu.SchoolName); name != "" {
			account.Education = append(account.Education, name)
		}
	}
	if len(p.Experience) > 0 {
		account.Company = strings.TrimSpace(p.Experience[0].CompanyName)
	}
	return account, nil
}

func parseGeneric(platform string, raw json.RawMessage) (*Account, error) {
	var p genericProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode %s profile: %w", platform, err)
	}
	account := &Account{
		Platform:    platform,
		Handle:      textutil.FirstNonEmpty(p.Username, p.UniqueID),
		URL:         textutil.FirstNonEmpty(p.URL, p.ProfileURL),
		DisplayName: textutil.FirstNonEmpty(p.Name, p.Nickname, p.Title),
		Bio:         textutil.FirstNonEmpty(p.Bio, p.Signature, p.Description),
		Followers:   max(p.Followers, p.FollowerCount, p.Subscribers),
		Verified:    p.Verified,
		ProfilePic:  textutil.FirstNonEmpty(p.Avatar, p.ProfilePicture, p.ProfilePhoto),
	}
	if m := p.AuthorMeta; m != nil {
		account.Handle = textutil.FirstNonEmpty(account.Handle, m.Name)
		account.DisplayName = textutil.FirstNonEmpty(account.DisplayName, m.NickName)
		account.Bio = textutil.FirstNonEmpty(account.Bio, m.Signature)
		account.URL = textutil.FirstNonEmpty(account.URL, m.ProfileURL)
		account.ProfilePic = textutil.FirstNonEmpty(account.ProfilePic, m.Avatar)
		account.Followers = max(account.Followers, m.Fans)
		account.Verified = account.Verified || m.Verified
	}
	return account, nil
}
