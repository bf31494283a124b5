package popup

// popupHTML is the page loaded into the full-screen transparent popup
// window. The window itself never moves; the card is positioned inside
// it via __setPopupPosition so show/reposition never touches the native
// window geometry. The controller drives it through three hooks:
//
//	__setPopupText(text)       render text into the card
//	__setPopupPosition({x,y})  move the card (CSS pixels)
//	__setPopupMode(mode)       "text" (read-only) or "prompt" (input shown)
const popupHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  html, body {
    margin: 0; padding: 0;
    width: 100%; height: 100%;
    background: transparent;
    overflow: hidden;
    font-family: -apple-system, "Segoe UI", sans-serif;
  }
  #card {
    position: absolute;
    left: 0; top: 0;
    max-width: 420px;
    max-height: 160px;
    overflow-y: auto;
    padding: 10px 14px;
    border-radius: 10px;
    background: rgba(28, 28, 30, 0.92);
    color: #f2f2f7;
    font-size: 14px;
    line-height: 1.45;
    white-space: pre-wrap;
    word-break: break-word;
    box-shadow: 0 6px 24px rgba(0, 0, 0, 0.35);
    display: none;
  }
  #prompt {
    width: 100%;
    margin-top: 8px;
    padding: 6px 8px;
    border: 1px solid rgba(255, 255, 255, 0.2);
    border-radius: 6px;
    background: rgba(0, 0, 0, 0.3);
    color: inherit;
    font: inherit;
    display: none;
  }
</style>
</head>
<body>
<div id="card"><div id="text"></div><input id="prompt" type="text" placeholder="Describe what to do with the screenshot…"></div>
<script>
  var card = document.getElementById("card");
  var text = document.getElementById("text");
  var prompt = document.getElementById("prompt");

  window.__setPopupText = function (t) {
    text.textContent = t;
    card.style.display = t || prompt.style.display === "block" ? "block" : "none";
    card.scrollTop = card.scrollHeight;
  };

  window.__setPopupPosition = function (p) {
    card.style.left = p.x + "px";
    card.style.top = p.y + "px";
  };

  window.__setPopupMode = function (mode) {
    prompt.style.display = mode === "prompt" ? "block" : "none";
    if (mode === "prompt") {
      card.style.display = "block";
      prompt.value = "";
      prompt.focus();
    }
  };
</script>
</body>
</html>`
