package generate

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"viba/internal/domain"
)

// describePrompt instructs the text model to break an image down into a
// structured, spatially precise description that stage two can rebuild from.
const describePrompt = `# Role
你是一位专业的视觉内容分析专家，擅长将图像转化为精确、结构化且具有空间感知能力的文字描述。你的目标是让读者仅通过阅读文字就能在脑海中完美重建画面。

# Task
请对上传的图像进行深度视觉分析。不要只做笼统的总结，必须按照以下四个核心维度进行详细拆解。

# Analysis Guidelines
<visual_analysis_guidelines>
1. **画面内容 (Visual Content)**
   - 描述图像的整体类型（如：照片、插画、图表、UI截图）。
   - 详细列出可见的物体、环境元素、色彩基调、光影效果（光源方向、明暗对比）以及纹理细节。
   - 避免模糊的形容词，使用具体的视觉术语。

2. **核心主体 (Main Subject)**
   - 明确指出画面的视觉焦点（人、物或某个特定区域）。
   - 描述主体的外观特征（如：衣着、表情、姿态、颜色、形状）。
   - 解释为什么它是主体（通过构图、聚焦或光线突出）。

3. **相对位置与空间布局 (Spatial Layout & Relative Positions)**
   - 使用精确的空间方位词（前景、中景、背景；左上象限、右下角、中心偏左）。
   - 描述物体之间的距离感（紧挨、疏远）和层次感（遮挡关系、透视深度）。
   - 建立一个“心理网格”，精确定位元素在画幅中的位置。

4. **相互关系与交互 (Interrelationships & Interactions)**
   - 描述主体与环境或其他物体之间的互动（物理接触、视线方向、动作指向）。
   - 分析元素之间的逻辑或情感联系（例如：因果关系、对比关系、氛围烘托）。
   - 解释画面讲述了什么故事或传递了什么动态。
</visual_analysis_guidelines>

# Output Format
请使用 Markdown 格式，严格按照上述四个标题输出，保持条理清晰。

# Constraints
- 如果图像中包含文字，请转录并指明其位置。
- 不要推测图像画幅之外的内容。
- 如果某些细节模糊不清，请如实描述其模糊性，不要编造细节（无幻觉）。`

const avatarPrompt = `Create a high-quality, professional character image based on these reference photos.
The style should be clean, with a gray-white background and studio-level natural lighting.
The character's makeup, facial features, body shape, skin tone, hairstyle, and hair color must be consistent with the original images, without any changes.
The character wears a white tight yoga outfit.
Subject centered.`

const tryOnPrompt = "Generate a realistic image of the person from the first image wearing the clothing from the second image. Ensure the clothing is exactly consistent with the original, while maintaining natural fit, matching the model’s pose, lighting, and body shape. The garment silhouette, fabric, and structure must not be altered."

const swapPrompt = "Compose the person from the first image into the scene provided by the second image. Harmonize lighting, shadows, and color tones so that the character appears to naturally belong in the environment. Keep the pose of the person in the second image unchanged, and choose a full-body or suitable composition according to the scene."

// derivationPrompt builds the stage-two generation instruction from the
// stage-one description, the creativity level, and an optional skin-tone hint.
func derivationPrompt(description string, intensity int, skinTone string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a creative variant based on the following description: \"%s\".\nCreativity level: %d/10.\n", description, intensity)
	b.WriteString("CRITICAL: You MUST preserve the visual style, color grading, lighting atmosphere, and filter effects described. The generated image should look like it belongs to the same photography series or uses the same filter/preset as the original description.\n")
	if skinTone != "" {
		fmt.Fprintf(&b, "IMPORTANT: The subject in the image must have a %s skin tone. Ensure this skin tone is applied naturally. Keep all other features such as hair style, facial structure, clothing, and pose consistent with the original description, only modifying the skin tone.\n", skinTone)
	}
	b.WriteString("Maintain the artistic style strictly. Return only the image.")
	return b.String()
}

var skinToneCaser = cases.Title(language.English)

// NormalizeSkinTone canonicalizes a case-insensitive hint onto the accepted
// set. The empty string means no hint and passes through.
func NormalizeSkinTone(tone string) (string, error) {
	tone = strings.TrimSpace(tone)
	if tone == "" {
		return "", nil
	}
	normalized := skinToneCaser.String(strings.ToLower(tone))
	switch normalized {
	case "Light", "Medium", "Dark":
		return normalized, nil
	}
	return "", fmt.Errorf("unsupported skin tone %q: %w", tone, domain.ErrValidation)
}
