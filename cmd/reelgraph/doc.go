// Command reelgraph runs the content production workflow: it searches for an
// article on a topic, turns it into a short video script, generates prompts,
// images and a voiceover, and files everything in a tracked project folder.
//
//	reelgraph run "quantum computing news"
//	reelgraph run --component search --component crawl "fusion"
//	reelgraph graph
package main
