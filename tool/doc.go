// Package tool provides the collaborator adapters used by the content
// workflow.
//
// # Search
//
// BraveSearch and TavilySearch return ranked candidate articles:
//
//	search, err := tool.NewBraveSearch("", tool.WithBraveCount(10))
//	if err != nil {
//		return err
//	}
//	results, err := search.Search(ctx, "quantum computing news", 5)
//
// # Crawling
//
// Crawler fetches a page with net/http, parses it with goquery and extracts
// the title, body paragraphs, images and their alt text. Pages without enough
// text fail with ErrNoContent.
//
// # Generation
//
// LLMScriptWriter and LLMPromptWriter drive any langchaingo llms.Model.
// OpenAIImageGenerator and OpenAIVoiceGenerator call the OpenAI image and
// speech endpoints through go-openai.
//
// # Assets and tracking
//
// LocalDrive lays out project folders on disk and GoogleDrive mirrors the
// layout in Google Drive. NotionTracker records projects in a Notion
// database through notionapi; StoreTracker keeps them in a store.Datastore
// instead.
//
// Adapters report non-2xx answers as *StatusError; IsTemporary tells
// whether a retry may help.
package tool
