package browser

// Overlay scripts. One container per owner keeps erase per-configId:
// replacing or removing an owner's layer never touches another's.
const setOverlayJS = `(owner, boxesJSON) => {
	const id = 'a11yview-overlay-' + owner;
	let layer = document.getElementById(id);
	if (layer) { layer.remove(); }

	layer = document.createElement('div');
	layer.id = id;
	layer.style.cssText = 'position:absolute;top:0;left:0;width:0;height:0;z-index:2147483646;pointer-events:none;';

	for (const box of JSON.parse(boxesJSON)) {
		const el = document.createElement('div');
		el.style.cssText = 'position:absolute;box-sizing:border-box;pointer-events:none;' +
			'left:' + box.rect.x + 'px;top:' + box.rect.y + 'px;' +
			'width:' + box.rect.width + 'px;height:' + box.rect.height + 'px;' +
			'border:2px solid ' + box.outline + ';';
		if (box.label) {
			const badge = document.createElement('span');
			badge.textContent = box.label;
			badge.style.cssText = 'position:absolute;top:-1.4em;left:0;font:10px sans-serif;' +
				'color:#fff;padding:1px 3px;background:' + box.outline + ';';
			el.appendChild(badge);
		}
		if (box.snippet) {
			el.title = box.snippet;
		}
		layer.appendChild(el);
	}
	document.body.appendChild(layer);
}`

const removeOverlayJS = `(owner) => {
	const layer = document.getElementById('a11yview-overlay-' + owner);
	if (layer) { layer.remove(); }
}`
