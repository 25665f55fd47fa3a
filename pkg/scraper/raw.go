package scraper

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Wire shapes of the scraping API. Only the fields we map are declared.

type profileResponse struct {
	User rawUser `json:"user"`
}

type rawUser struct {
	UniqueID     string `json:"uniqueId"`
	Nickname     string `json:"nickname"`
	AvatarLarger string `json:"avatarLarger"`
	AvatarMedium string `json:"avatarMedium"`
	Signature    string `json:"signature"`
	Verified     bool   `json:"verified"`
}

type videosResponse struct {
	AwemeList []rawAweme `json:"aweme_list"`
	HasMore   flexBool   `json:"has_more"`
	MaxCursor flexString `json:"max_cursor"`
}

type rawAweme struct {
	AwemeID       string         `json:"aweme_id"`
	Desc          string         `json:"desc"`
	CreateTime    int64          `json:"create_time"`
	ShareURL      string         `json:"share_url"`
	Author        rawAuthor      `json:"author"`
	Statistics    rawStatistics  `json:"statistics"`
	Video         rawVideo       `json:"video"`
	Music         rawMusic       `json:"music"`
	ImagePostInfo *rawImagePost  `json:"image_post_info"`
	TextExtra     []rawTextExtra `json:"text_extra"`
}

type rawAuthor struct {
	UniqueID     string     `json:"unique_id"`
	Nickname     string     `json:"nickname"`
	AvatarThumb  rawURLList `json:"avatar_thumb"`
	AvatarMedium rawURLList `json:"avatar_medium"`
}

type rawStatistics struct {
	PlayCount    int64 `json:"play_count"`
	DiggCount    int64 `json:"digg_count"`
	ShareCount   int64 `json:"share_count"`
	CommentCount int64 `json:"comment_count"`
	CollectCount int64 `json:"collect_count"`
}

type rawVideo struct {
	PlayAddr rawURLList `json:"play_addr"`
	Cover    rawURLList `json:"cover"`
	Duration int        `json:"duration"`
}

type rawMusic struct {
	PlayURL rawURLList `json:"play_url"`
}

type rawImagePost struct {
	Images []rawImage `json:"images"`
}

type rawImage struct {
	DisplayImage rawURLList `json:"display_image"`
}

type rawURLList struct {
	URLList []string `json:"url_list"`
	Width   int      `json:"width"`
	Height  int      `json:"height"`
}

func (l rawURLList) first() string {
	for _, u := range l.URLList {
		if u != "" {
			return u
		}
	}
	return ""
}

// rawTextExtra is a hashtag (type 1) or a mention (type 0) annotation of desc.
type rawTextExtra struct {
	Type         int    `json:"type"`
	HashtagName  string `json:"hashtag_name"`
	UserUniqueID string `json:"user_unique_id"`
}

// flexBool accepts true/false as well as the 0/1 integers the API sometimes sends.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true", "1":
		*b = true
	case "false", "0", "null":
		*b = false
	default:
		var v bool
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*b = flexBool(v)
	}
	return nil
}

// flexString accepts a cursor sent either as a JSON string or a number.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}
