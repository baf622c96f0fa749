// Package wechat implements the Official Account boundary: the webhook
// HTTP surface, the XML message codec, access-token management, the
// customer-service push channel, and temp-media upload.
package wechat

import (
	"encoding/xml"
	"fmt"
	"time"
)

// IncomingMessage is the XML payload WeChat posts to the webhook.
type IncomingMessage struct {
	XMLName      xml.Name `xml:"xml"`
	ToUserName   string   `xml:"ToUserName"`
	FromUserName string   `xml:"FromUserName"`
	CreateTime   int64    `xml:"CreateTime"`
	MsgType      string   `xml:"MsgType"`
	Content      string   `xml:"Content"`
	MsgID        int64    `xml:"MsgId"`
}

// cdata wraps a string so it marshals as a CDATA section, which is what
// the platform expects for all text fields.
type cdata struct {
	Text string `xml:",cdata"`
}

// replyMessage is the XML reply returned from the webhook.
type replyMessage struct {
	XMLName      xml.Name `xml:"xml"`
	ToUserName   cdata    `xml:"ToUserName"`
	FromUserName cdata    `xml:"FromUserName"`
	CreateTime   int64    `xml:"CreateTime"`
	MsgType      cdata    `xml:"MsgType"`
	Content      cdata    `xml:"Content"`
}

// ParseIncoming decodes a webhook XML payload.
func ParseIncoming(data []byte) (*IncomingMessage, error) {
	var msg IncomingMessage
	if err := xml.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("wechat: parse message: %w", err)
	}
	return &msg, nil
}

// BuildReply renders a text reply addressed to toUser from fromUser.
func BuildReply(toUser, fromUser, content string, now time.Time) ([]byte, error) {
	reply := replyMessage{
		ToUserName:   cdata{toUser},
		FromUserName: cdata{fromUser},
		CreateTime:   now.Unix(),
		MsgType:      cdata{"text"},
		Content:      cdata{content},
	}
	data, err := xml.Marshal(reply)
	if err != nil {
		return nil, fmt.Errorf("wechat: build reply: %w", err)
	}
	return data, nil
}
