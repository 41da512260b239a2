package generateimage

// ImageSystemPrompt asks for one still matching the style reference.
const ImageSystemPrompt = "Generate a single cinematic still that matches the description and maintains the visual style of the provided " +
	"style image. Return the image as a data URL if possible."
