// Package preparse extracts structured paper metadata ahead of entity and
// relationship extraction. Failures here are never fatal to the caller: the
// EDC workflow proceeds without pre-parsed context when this fails.
package preparse

import (
	"context"
	"strings"

	"paperkg/pkg/ai"
	"paperkg/pkg/common"
)

type author struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	Email       string `json:"email,omitempty"`
}

type preparsedResponse struct {
	Title        string   `json:"title"`
	Authors      []author `json:"authors,omitempty"`
	Abstract     string   `json:"abstract,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	MainFindings []string `json:"mainFindings,omitempty"`
	Methodology  string   `json:"methodology,omitempty"`
	Results      string   `json:"results,omitempty"`
	Discussion   string   `json:"discussion,omitempty"`
	References   []string `json:"references,omitempty"`
	Publication  string   `json:"publication,omitempty"`
}

// PreParser extracts a PreparsedPaperContext from raw paper text via a
// single structured-output LLM call.
type PreParser struct {
	Client ai.ChatClient
}

// New builds a PreParser backed by client.
func New(client ai.ChatClient) *PreParser {
	return &PreParser{Client: client}
}

// PreParse extracts structured metadata from text. Empty text yields an
// empty context rather than an LLM call.
func (p *PreParser) PreParse(ctx context.Context, text string) (*common.PreparsedPaperContext, error) {
	if strings.TrimSpace(text) == "" {
		return &common.PreparsedPaperContext{}, nil
	}

	var resp preparsedResponse
	if err := p.Client.GenerateJSON(
		ctx,
		"paper_preparse",
		"Structured metadata extracted from an academic paper",
		ai.FormatPreparsePrompt(text),
		&resp,
		ai.WithSystemPrompts("You extract structured bibliographic metadata from academic paper text."),
	); err != nil {
		return nil, err
	}

	authors := make([]common.Author, 0, len(resp.Authors))
	for _, a := range resp.Authors {
		authors = append(authors, common.Author{Name: a.Name, Affiliation: a.Affiliation, Email: a.Email})
	}

	return &common.PreparsedPaperContext{
		Title:        resp.Title,
		Authors:      authors,
		Abstract:     resp.Abstract,
		Keywords:     resp.Keywords,
		MainFindings: resp.MainFindings,
		Methodology:  resp.Methodology,
		Results:      resp.Results,
		Discussion:   resp.Discussion,
		References:   resp.References,
		Publication:  resp.Publication,
	}, nil
}
