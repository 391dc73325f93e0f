// Command reelmonitor watches produced projects for their edited video.
//
//	reelmonitor check-all
//	reelmonitor monitor RocketReelsAI/AI_Breakthrough_20241228_1430
//	reelmonitor update AI_Breakthrough_20241228_1430 final_edit_v2.mp4
//	reelmonitor summary AI_Breakthrough_20241228_1430
package main
